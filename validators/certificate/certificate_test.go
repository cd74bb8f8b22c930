package certificateValidator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCertificateIDAcceptsNumberOrString(t *testing.T) {
	var req NotificationRequest
	require.NoError(t, json.Unmarshal([]byte(`{"certificateId": 12}`), &req))
	assert.EqualValues(t, 12, req.CertificateID)

	require.NoError(t, json.Unmarshal([]byte(`{"certificateId": "34"}`), &req))
	assert.EqualValues(t, 34, req.CertificateID)

	require.NoError(t, json.Unmarshal([]byte(`{"certificateId": null}`), &req))
	assert.EqualValues(t, 0, req.CertificateID)

	assert.Error(t, json.Unmarshal([]byte(`{"certificateId": "abc"}`), &req))
}

func TestCreateCertificateRules(t *testing.T) {
	err := validate.Struct(&CreateCertificateRequest{CertificateNo: "C-1", Name: "Jane", Hospital: "City", DOI: "01-02-2024"})
	assert.NoError(t, err)

	summary, errs := fieldErrors(validate.Struct(&CreateCertificateRequest{CertificateNo: "C-1", Name: "Jane", Hospital: "City", DOI: "1-2-2024"}))
	assert.Equal(t, "DOI must be in DD-MM-YYYY format.", summary)
	assert.Contains(t, errs, "doi")

	summary, errs = fieldErrors(validate.Struct(&CreateCertificateRequest{DOI: "bad"}))
	assert.Equal(t, "Missing required fields.", summary)
	assert.Len(t, errs, 4)
}

func TestDedupeKeepsOrder(t *testing.T) {
	assert.Equal(t, []uint{3, 1, 2}, dedupe([]CertificateID{3, 1, 3, 2, 1}))
}
