package session

import "testing"

type countingResource struct {
	releases int
}

func (r *countingResource) Release() { r.releases++ }

func TestResourcesReleaseAll(t *testing.T) {
	var rs Resources
	a := &countingResource{}
	b := &countingResource{}
	rs.Attach(a)
	rs.Attach(b)

	rs.ReleaseAll()
	if a.releases != 1 || b.releases != 1 {
		t.Errorf("releases = (%d, %d), want (1, 1)", a.releases, b.releases)
	}

	// Idempotent: a second teardown must not release again.
	rs.ReleaseAll()
	if a.releases != 1 || b.releases != 1 {
		t.Errorf("releases after second ReleaseAll = (%d, %d), want (1, 1)", a.releases, b.releases)
	}
}

func TestResourcesAttachAfterRelease(t *testing.T) {
	var rs Resources
	rs.ReleaseAll()

	late := &countingResource{}
	rs.Attach(late)
	if late.releases != 1 {
		t.Errorf("late attach releases = %d, want immediate release", late.releases)
	}
}

func TestResourcesAttachNil(t *testing.T) {
	var rs Resources
	rs.Attach(nil)
	rs.ReleaseAll() // must not panic
}
