package fractal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGlobalHealthFaultAndRecoveryAccounting(t *testing.T) {
	var h GlobalHealth
	assert.True(t, h.Healthy())

	h.ReportFault()
	h.ReportFault()
	assert.Equal(t, int64(2), h.FaultCount())
	assert.False(t, h.Healthy())

	h.ReportRecovery()
	assert.Equal(t, int64(1), h.FaultCount())

	h.ReportRecovery()
	assert.True(t, h.Healthy())
}

func TestGlobalHealthRecoveryFlooredAtZero(t *testing.T) {
	var h GlobalHealth
	h.ReportRecovery()
	h.ReportRecovery()
	assert.Equal(t, int64(0), h.FaultCount())
	assert.True(t, h.Healthy())
}
