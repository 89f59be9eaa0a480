// internal/overrides/store_test.go
//
// Unit-tests for the override store.
//
// Context
// -------
// These tests exercise the store against a real file in t.TempDir():
//
//   • exactness of round-tripped values (decimals, URLs, numeric strings),
//   • key-level partial merge that never drops untouched keys,
//   • isolation between service sections and unrelated top-level keys,
//   • concurrent partial updates to one service losing nothing,
//   • malformed files rejected at open.

package overrides

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ushadow-io/ushadow/internal/value"
)

func newStore(t *testing.T, content string) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.overrides.yaml")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	s, err := NewStore(path)
	require.NoError(t, err)
	return s
}

func TestGet_UnknownServiceIsEmpty(t *testing.T) {
	s := newStore(t, "")
	m, err := s.Get("never-configured")
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestUpdate_ExactValues(t *testing.T) {
	s := newStore(t, "")
	in := value.Map{
		"TEMPERATURE": value.MustNum("0.123456789"),
		"MONGO_URL":   value.Str("mongodb://user-override-test:27017/testdb"),
		"PORT":        value.Str("8080"),
		"MAX_TOKENS":  value.MustNum("4096"),
		"STREAM":      value.Boolean(false),
	}
	require.NoError(t, s.Update("chronicle", in))

	// A fresh store proves the value came from disk.
	fresh, err := NewStore(s.Path())
	require.NoError(t, err)
	got, err := fresh.Get("chronicle")
	require.NoError(t, err)
	assert.True(t, in.Equal(got), "got %#v", got)
}

func TestUpdate_PartialMergeKeepsOtherKeys(t *testing.T) {
	s := newStore(t, "")
	require.NoError(t, s.Update("svc", value.Map{"a": value.Str("1"), "b": value.Str("2"), "c": value.Str("3")}))
	require.NoError(t, s.Update("svc", value.Map{"a": value.Str("9")}))

	got, err := s.Get("svc")
	require.NoError(t, err)
	want := value.Map{"a": value.Str("9"), "b": value.Str("2"), "c": value.Str("3")}
	assert.True(t, want.Equal(got), "got %#v", got)
}

func TestUpdate_PreservesOtherSectionsAndKeys(t *testing.T) {
	s := newStore(t, `# user overrides
ui:
  theme: dark
service_preferences:
  other:
    KEEP: "yes"
    RATIO: 1.000000000001
`)
	require.NoError(t, s.Update("mine", value.Map{"X": value.Str("y")}))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "# user overrides")
	assert.Contains(t, string(data), "theme: dark")
	assert.Contains(t, string(data), "1.000000000001")

	other, err := s.Get("other")
	require.NoError(t, err)
	assert.Equal(t, value.Str("yes"), other["KEEP"])

	ids, err := s.Services()
	require.NoError(t, err)
	assert.Equal(t, []string{"mine", "other"}, ids)
}

func TestUpdate_EmptyPartialIsNoop(t *testing.T) {
	s := newStore(t, "")
	require.NoError(t, s.Update("svc", value.Map{}))
	_, err := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err), "no file should be created")
}

func TestUpdate_NoTempFilesLeftBehind(t *testing.T) {
	s := newStore(t, "")
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Update("svc", value.Map{"N": value.MustNum(fmt.Sprint(i))}))
	}
	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "stray temp file %s", e.Name())
	}
}

func TestUpdate_ConcurrentSameServiceLosesNothing(t *testing.T) {
	s := newStore(t, "")
	const writers = 16

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("K%02d", i)
			assert.NoError(t, s.Update("shared", value.Map{key: value.Str(key)}))
		}(i)
	}
	wg.Wait()

	got, err := s.Get("shared")
	require.NoError(t, err)
	assert.Len(t, got, writers)
}

func TestUpdate_ConcurrentDifferentServices(t *testing.T) {
	s := newStore(t, "")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("svc-%d", i)
			assert.NoError(t, s.Update(id, value.Map{"ID": value.Str(id)}))
		}(i)
	}
	wg.Wait()

	ids, err := s.Services()
	require.NoError(t, err)
	assert.Len(t, ids, 8)
}

func TestNewStore_MalformedIsFatal(t *testing.T) {
	for name, content := range map[string]string{
		"BadYAML":        "service_preferences: [unclosed",
		"TopLevelList":   "- a\n- b\n",
		"SectionIsList":  "service_preferences:\n  - a\n",
		"NestedOverride": "service_preferences:\n  svc:\n    KEY:\n      nested: 1\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.overrides.yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			_, err := NewStore(path)
			assert.ErrorIs(t, err, ErrMalformedOverrides)
		})
	}
}

// Property-based tests using rapid

func TestExactness_PropertyBased_UpdateThenGet(t *testing.T) {
	dir := t.TempDir()
	n := 0
	rapid.Check(t, func(t *rapid.T) {
		n++
		s, err := NewStore(filepath.Join(dir, fmt.Sprintf("o%d.yaml", n)))
		require.NoError(t, err)

		key := rapid.StringMatching(`[A-Z][A-Z0-9_]{0,15}`).Draw(t, "key")
		var v value.Value
		switch rapid.IntRange(0, 2).Draw(t, "kind") {
		case 0:
			lit := rapid.StringMatching(`-?(0|[1-9][0-9]{0,6})\.[0-9]{9,20}`).Draw(t, "decimal")
			v = value.MustNum(lit)
		case 1:
			host := rapid.StringMatching(`[a-z][a-z0-9-]{0,15}`).Draw(t, "host")
			v = value.Str("mongodb://" + host + ":27017/db")
		default:
			v = value.Str(rapid.StringMatching(`[ -~]{0,30}`).Draw(t, "plain"))
		}

		require.NoError(t, s.Update("svc", value.Map{key: v}))
		got, err := s.Get("svc")
		require.NoError(t, err)
		assert.True(t, v.Equal(got[key]), "wrote %#v, read %#v", v, got[key])
	})
}
