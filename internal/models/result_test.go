package models_test

import (
	"testing"

	"github.com/benmeehan/vmdevice-agent/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteCommandResult_SuccessInvariant(t *testing.T) {
	ok := models.NewSuccessResult([]byte(`{"success": true}`))
	assert.True(t, ok.Success)
	assert.NotNil(t, ok.Payload)
	assert.Empty(t, ok.Error)

	failed := models.NewFailureResult(models.FailureNonZeroExit, "boom")
	assert.False(t, failed.Success)
	assert.Nil(t, failed.Payload)
	assert.Equal(t, "boom", failed.Error)

	unnamed := models.NewFailureResult(models.FailureTransport, "")
	assert.NotEmpty(t, unnamed.Error)

	parse := models.NewParseFailureResult("Failed to parse JSON output", "oops")
	assert.False(t, parse.Success)
	assert.Equal(t, "oops", parse.RawOutput)
	assert.Equal(t, models.FailurePayloadParse, parse.Kind)
}

func TestRemoteCommandResult_Decode(t *testing.T) {
	var response models.ActionResponse
	require.NoError(t, models.NewSuccessResult([]byte(`{"success": false, "error": "busy"}`)).Decode(&response))
	require.NotNil(t, response.Success)
	assert.False(t, *response.Success)
	assert.Equal(t, "busy", response.Error)

	err := models.NewFailureResult(models.FailureTransport, "down").Decode(&response)
	assert.EqualError(t, err, "cannot decode failed result: down")
}
