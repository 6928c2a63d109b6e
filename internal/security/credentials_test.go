package security

import (
	"slices"
	"sync"
	"testing"
)

func TestCredentialStore_SetGet(t *testing.T) {
	t.Parallel()

	s := NewCredentialStore()
	s.Set("API_KEY", "value")
	s.Set("EMPTY", "")

	if v, ok := s.Get("API_KEY"); !ok || v != "value" {
		t.Errorf("Get(API_KEY) = %q, %v", v, ok)
	}
	if _, ok := s.Get("EMPTY"); ok {
		t.Error("empty values must not be stored")
	}
	s.Set("API_KEY", "other")
	if v, _ := s.Get("API_KEY"); v != "other" {
		t.Errorf("overwrite: got %q", v)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestCredentialStore_NamesSorted(t *testing.T) {
	t.Parallel()

	s := NewCredentialStore()
	s.Set("B", "2")
	s.Set("A", "1")
	if got := s.Names(); !slices.Equal(got, []string{"A", "B"}) {
		t.Errorf("Names = %v", got)
	}
	vals := s.Values()
	slices.Sort(vals)
	if !slices.Equal(vals, []string{"1", "2"}) {
		t.Errorf("Values = %v", vals)
	}
}

func TestCredentialStore_SetFromEnv(t *testing.T) {
	t.Setenv("TG_TEST_KEY", "from-env")
	t.Setenv("TG_TEST_EMPTY", "")

	s := NewCredentialStore()
	found := s.SetFromEnv("TG_TEST_KEY", "TG_TEST_EMPTY", "TG_TEST_UNSET", "")
	if !slices.Equal(found, []string{"TG_TEST_KEY"}) {
		t.Errorf("found = %v", found)
	}
	if v, _ := s.Get("TG_TEST_KEY"); v != "from-env" {
		t.Errorf("value = %q", v)
	}
}

func TestCredentialStore_Concurrent(t *testing.T) {
	t.Parallel()

	s := NewCredentialStore()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Set("K", string(rune('a'+i)))
		}()
		go func() {
			defer wg.Done()
			_ = s.Values()
		}()
	}
	wg.Wait()
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}
