package git

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/skein-dev/skein/internal/errors"
	pexec "github.com/skein-dev/skein/internal/exec"
)

// installMock swaps in a mock executor for the duration of a test.
func installMock(t *testing.T, mock *pexec.MockExecutor) {
	t.Helper()
	prev := GetExecutor()
	SetExecutor(mock)
	t.Cleanup(func() { SetExecutor(prev) })
}

func TestValidateBranchName(t *testing.T) {
	tests := []struct {
		name    string
		branch  string
		wantErr bool
	}{
		{name: "empty is allowed", branch: "", wantErr: false},
		{name: "simple name", branch: "feature", wantErr: false},
		{name: "with slash", branch: "feature/add-thing", wantErr: false},
		{name: "with dots and dashes", branch: "release-1.2.3", wantErr: false},
		{name: "with underscore", branch: "my_branch", wantErr: false},
		{name: "leading dash", branch: "-feature", wantErr: true},
		{name: "double dot", branch: "feature..name", wantErr: true},
		{name: "lock suffix", branch: "feature.lock", wantErr: true},
		{name: "contains space", branch: "my branch", wantErr: true},
		{name: "contains tilde", branch: "branch~1", wantErr: true},
		{name: "contains colon", branch: "branch:name", wantErr: true},
		{name: "too long", branch: strings.Repeat("a", 101), wantErr: true},
		{name: "exactly max length", branch: strings.Repeat("a", 100), wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBranchName(tt.branch)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBranchName(%q) error = %v, wantErr %v", tt.branch, err, tt.wantErr)
			}
		})
	}
}

func TestSortDefaultFirst(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "main moved to front",
			input:    []string{"develop", "main", "feature/a"},
			expected: []string{"main", "develop", "feature/a"},
		},
		{
			name:     "master moved to front",
			input:    []string{"feature/a", "feature/b", "master"},
			expected: []string{"master", "feature/a", "feature/b"},
		},
		{
			name:     "both main and master keep rest stable",
			input:    []string{"feature/a", "master", "feature/b", "main", "develop"},
			expected: []string{"master", "main", "feature/a", "feature/b", "develop"},
		},
		{
			name:     "neither present keeps order",
			input:    []string{"develop", "staging", "feature/x"},
			expected: []string{"develop", "staging", "feature/x"},
		},
		{
			name:     "prefix is not a match",
			input:    []string{"main-backup", "mainline", "main"},
			expected: []string{"main", "main-backup", "mainline"},
		},
		{
			name:     "already first stays first",
			input:    []string{"main", "develop"},
			expected: []string{"main", "develop"},
		},
		{
			name:     "empty input",
			input:    nil,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SortDefaultFirst(tt.input)
			if len(got) != len(tt.expected) {
				t.Fatalf("SortDefaultFirst() = %v, want %v", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("SortDefaultFirst()[%d] = %q, want %q", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestSortDefaultFirst_DoesNotModifyInput(t *testing.T) {
	input := []string{"develop", "main", "feature/a"}
	SortDefaultFirst(input)
	if input[0] != "develop" || input[1] != "main" || input[2] != "feature/a" {
		t.Errorf("input modified: %v", input)
	}
}

func TestListBranches(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("git", []string{"branch", "--format=%(refname:short)"}, pexec.MockResponse{
		Stdout: []byte("develop\nmain\nfeature/login\n"),
	})
	installMock(t, mock)

	branches, err := ListBranches(context.Background(), "/repo")
	if err != nil {
		t.Fatalf("ListBranches() error = %v", err)
	}

	expected := []string{"main", "develop", "feature/login"}
	if len(branches) != len(expected) {
		t.Fatalf("ListBranches() = %v, want %v", branches, expected)
	}
	for i := range branches {
		if branches[i] != expected[i] {
			t.Errorf("ListBranches()[%d] = %q, want %q", i, branches[i], expected[i])
		}
	}
}

func TestListBranches_NotARepo(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("git", []string{"rev-parse", "--git-dir"}, pexec.MockResponse{
		Err: fmt.Errorf("exit status 128"),
	})
	installMock(t, mock)

	_, err := ListBranches(context.Background(), "/not-a-repo")
	if err == nil {
		t.Fatal("ListBranches() expected error for non-repo")
	}
	if !errors.Is(err, errors.KindInvalid) {
		t.Errorf("ListBranches() error kind = %v, want KindInvalid", errors.GetKind(err))
	}
}

func TestListBranches_Empty(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("git", []string{"branch", "--format=%(refname:short)"}, pexec.MockResponse{
		Stdout: []byte("\n"),
	})
	installMock(t, mock)

	branches, err := ListBranches(context.Background(), "/repo")
	if err != nil {
		t.Fatalf("ListBranches() error = %v", err)
	}
	if len(branches) != 0 {
		t.Errorf("ListBranches() = %v, want empty", branches)
	}
}

func TestBranchExists(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("git", []string{"rev-parse", "--verify", "feature/yes"}, pexec.MockResponse{})
	mock.AddPrefixMatch("git", []string{"rev-parse", "--verify", "feature/no"}, pexec.MockResponse{
		Err: fmt.Errorf("exit status 128"),
	})
	installMock(t, mock)

	ctx := context.Background()
	if !BranchExists(ctx, "/repo", "feature/yes") {
		t.Error("BranchExists() = false for existing branch")
	}
	if BranchExists(ctx, "/repo", "feature/no") {
		t.Error("BranchExists() = true for missing branch")
	}
}

func TestDefaultBranch_FromOriginHead(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("git", []string{"symbolic-ref", "refs/remotes/origin/HEAD"}, pexec.MockResponse{
		Stdout: []byte("refs/remotes/origin/trunk\n"),
	})
	installMock(t, mock)

	if got := DefaultBranch(context.Background(), "/repo"); got != "trunk" {
		t.Errorf("DefaultBranch() = %q, want %q", got, "trunk")
	}
}

func TestDefaultBranch_FallbackToMaster(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("git", []string{"symbolic-ref"}, pexec.MockResponse{
		Err: fmt.Errorf("no origin"),
	})
	mock.AddPrefixMatch("git", []string{"rev-parse", "--verify", "main"}, pexec.MockResponse{
		Err: fmt.Errorf("exit status 128"),
	})
	mock.AddPrefixMatch("git", []string{"rev-parse", "--verify", "master"}, pexec.MockResponse{})
	installMock(t, mock)

	if got := DefaultBranch(context.Background(), "/repo"); got != "master" {
		t.Errorf("DefaultBranch() = %q, want %q", got, "master")
	}
}

func TestDefaultBranch_LastResort(t *testing.T) {
	mock := pexec.NewMockExecutor(&pexec.MockResponse{Err: fmt.Errorf("exit status 128")})
	installMock(t, mock)

	if got := DefaultBranch(context.Background(), "/repo"); got != "main" {
		t.Errorf("DefaultBranch() = %q, want %q", got, "main")
	}
}

func TestCurrentBranch(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("git", []string{"rev-parse", "--abbrev-ref", "HEAD"}, pexec.MockResponse{
		Stdout: []byte("feature/current\n"),
	})
	installMock(t, mock)

	if got := CurrentBranch(context.Background(), "/repo"); got != "feature/current" {
		t.Errorf("CurrentBranch() = %q, want %q", got, "feature/current")
	}
}

func TestIsRepo(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	installMock(t, mock)

	if !IsRepo(context.Background(), "/repo") {
		t.Error("IsRepo() = false, want true")
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Dir != "/repo" {
		t.Errorf("call dir = %q, want %q", calls[0].Dir, "/repo")
	}
}
