package jobs

import "testing"

func TestBranchRoundTrip(t *testing.T) {
	t.Parallel()

	branch := EncodeBranch("abc123")
	if branch != "job/abc123" {
		t.Fatalf("unexpected branch: %q", branch)
	}
	id, ok := DecodeBranch(branch)
	if !ok || id != "abc123" {
		t.Fatalf("decode failed: id=%q ok=%v", id, ok)
	}
}

func TestDecodeBranch(t *testing.T) {
	t.Parallel()

	cases := []struct {
		branch string
		wantID string
		wantOK bool
	}{
		{branch: "job/abc123", wantID: "abc123", wantOK: true},
		{branch: "refs/heads/job/xyz", wantID: "xyz", wantOK: true},
		{branch: "main", wantOK: false},
		{branch: "feature/job/abc", wantOK: false},
		{branch: "job/", wantOK: false},
		{branch: "", wantOK: false},
	}
	for _, tc := range cases {
		id, ok := DecodeBranch(tc.branch)
		if ok != tc.wantOK || id != tc.wantID {
			t.Fatalf("branch=%q want=(%q,%v) got=(%q,%v)", tc.branch, tc.wantID, tc.wantOK, id, ok)
		}
	}
}

func TestResolveJobIDPrefersExplicitField(t *testing.T) {
	t.Parallel()

	p := CompletionPayload{JobID: "explicit", Branch: "job/from-branch"}
	if id, ok := p.ResolveJobID(); !ok || id != "explicit" {
		t.Fatalf("unexpected id %q ok=%v", id, ok)
	}
	p = CompletionPayload{Branch: "job/abc123"}
	if id, ok := p.ResolveJobID(); !ok || id != "abc123" {
		t.Fatalf("unexpected id %q ok=%v", id, ok)
	}
	p = CompletionPayload{Branch: "main"}
	if _, ok := p.ResolveJobID(); ok {
		t.Fatalf("main should not resolve to a job")
	}
}
