package model_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdata/logflow/internal/model"
)

func validRecord() model.LogRecord {
	return model.LogRecord{
		DeviceID: "device-1",
		LogLevel: model.LevelInfo,
		Message:  "boot complete",
	}
}

func TestValidateRecord_Valid(t *testing.T) {
	r := validRecord()
	assert.Nil(t, model.ValidateRecord(&r))
}

func TestValidateRecord_EmptyDeviceID(t *testing.T) {
	r := validRecord()
	r.DeviceID = ""

	fields := model.ValidateRecord(&r)
	require.NotNil(t, fields)
	assert.Contains(t, fields, "device_id")
}

func TestValidateRecord_DeviceIDTooLong(t *testing.T) {
	r := validRecord()
	r.DeviceID = strings.Repeat("d", model.MaxDeviceIDLen+1)

	fields := model.ValidateRecord(&r)
	require.NotNil(t, fields)
	assert.Contains(t, fields, "device_id")
}

func TestValidateRecord_UnknownLogLevel(t *testing.T) {
	r := validRecord()
	r.LogLevel = "FOO"

	fields := model.ValidateRecord(&r)
	require.NotNil(t, fields)
	assert.Contains(t, fields, "log_level")
}

func TestValidateRecord_EmptyMessage(t *testing.T) {
	r := validRecord()
	r.Message = ""

	fields := model.ValidateRecord(&r)
	require.NotNil(t, fields)
	assert.Contains(t, fields, "message")
}

func TestValidateRecord_MessageTooLong(t *testing.T) {
	r := validRecord()
	r.Message = strings.Repeat("m", model.MaxMessageLen+1)

	fields := model.ValidateRecord(&r)
	require.NotNil(t, fields)
	assert.Contains(t, fields, "message")
}

func TestValidateRecord_BoundaryLengthsAccepted(t *testing.T) {
	r := validRecord()
	r.DeviceID = strings.Repeat("d", model.MaxDeviceIDLen)
	r.Message = strings.Repeat("m", model.MaxMessageLen)

	assert.Nil(t, model.ValidateRecord(&r))
}

func TestLogLevel_IsValid(t *testing.T) {
	for _, lvl := range model.ValidLogLevels {
		assert.True(t, lvl.IsValid(), string(lvl))
	}

	assert.False(t, model.LogLevel("TRACE").IsValid())
	assert.False(t, model.LogLevel("info").IsValid())
}

func TestApplyDefaults_AssignsTimestampWhenAbsent(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()

	r := validRecord()
	r.ApplyDefaults(now)
	assert.Equal(t, now, r.Timestamp)

	supplied := now.Add(-time.Hour)
	r2 := validRecord()
	r2.Timestamp = supplied
	r2.ApplyDefaults(now)
	assert.Equal(t, supplied, r2.Timestamp)
}
