package sync

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fossengine/docsync-go/internal/remote"
)

func TestResolveBothAbsentSkips(t *testing.T) {
	d := Resolve(nil, nil, &SyncRecord{}, nil, DirectionNone)
	require.Equal(t, DirectionNone, d)
}

func TestResolveCloudOnlyCreatesLocal(t *testing.T) {
	cloud := remote.Document{"name": "C1"}
	d := Resolve(cloud, nil, &SyncRecord{}, nil, DirectionNone)
	require.Equal(t, DirectionCloudToLocal, d)
}

func TestResolveLocalOnlyCreatesCloud(t *testing.T) {
	local := remote.Document{"name": "C1"}
	d := Resolve(nil, local, &SyncRecord{}, nil, DirectionNone)
	require.Equal(t, DirectionLocalToCloud, d)
}

func TestResolveUnchangedReturnsNone(t *testing.T) {
	cloud := remote.Document{"name": "C1", "customer_name": "Acme"}
	local := remote.Document{"name": "C1", "customer_name": "Acme"}
	rec := &SyncRecord{CloudHash: remote.Hash(cloud, nil), LocalHash: remote.Hash(local, nil)}

	d := Resolve(cloud, local, rec, nil, DirectionNone)
	require.Equal(t, DirectionNone, d)
}

func TestResolveCloudChangedOnly(t *testing.T) {
	local := remote.Document{"name": "C1", "customer_name": "Acme"}
	rec := &SyncRecord{CloudHash: "stale", LocalHash: remote.Hash(local, nil)}
	cloud := remote.Document{"name": "C1", "customer_name": "AcmeCo"}

	d := Resolve(cloud, local, rec, nil, DirectionNone)
	require.Equal(t, DirectionCloudToLocal, d)
}

func TestResolveBothChangedIsConflict(t *testing.T) {
	rec := &SyncRecord{CloudHash: "stale-cloud", LocalHash: "stale-local"}
	cloud := remote.Document{"name": "C1", "customer_name": "AcmeCo"}
	local := remote.Document{"name": "C1", "customer_name": "Acme Inc"}

	d := Resolve(cloud, local, rec, nil, DirectionNone)
	require.Equal(t, DirectionConflict, d)
}
