package cu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRecord(t *testing.T) {
	now := time.Unix(1700000000, 0)
	desc := &Description{UID: "unit.0001", CPUProcesses: 4, CPUThreads: 2}
	r := NewRecord(desc, now)

	assert.Equal(t, StateNew, r.State)
	assert.Same(t, desc, r.Description)
	assert.Len(t, r.History, 1)
	assert.Equal(t, StateNew, r.History[0].State)
	assert.Equal(t, now, r.History[0].At)
}

func TestDescription_TotalCoreCount(t *testing.T) {
	assert.Equal(t, 8, (&Description{CPUProcesses: 4, CPUThreads: 2}).TotalCoreCount())
	assert.Equal(t, 4, (&Description{CPUProcesses: 4}).TotalCoreCount())
	assert.Equal(t, 4, (&Description{CPUProcesses: 4, CPUThreads: 0}).TotalCoreCount())
}

func TestDescription_IsMPI(t *testing.T) {
	assert.True(t, (&Description{CPUProcessType: ProcessTypeMPI}).IsMPI())
	assert.False(t, (&Description{CPUProcessType: ProcessTypePOSIX}).IsMPI())
	assert.False(t, (&Description{}).IsMPI())
}
