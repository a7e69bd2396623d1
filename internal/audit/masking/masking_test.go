package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "cfsk_ma_test_****cdef", MaskSecret("cfsk_ma_test_abcdef"))
	assert.Equal(t, "****", MaskSecret("abc"))
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "a****@example.com", MaskEmail("asha@example.com"))
	assert.Equal(t, "****", MaskEmail("bad"))
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "****3210", MaskPhone("+919876543210"))
	assert.Equal(t, "****", MaskPhone("123"))
	assert.Equal(t, "", MaskPhone(""))
}

func TestMaskPIINested(t *testing.T) {
	input := map[string]any{
		"type": "PAYMENT_SUCCESS_WEBHOOK",
		"data": map[string]any{
			"order": map[string]any{"order_id": "DON_1"},
			"customer_details": map[string]any{
				"customer_email": "asha@example.com",
				"customer_phone": "+919876543210",
				"customer_name":  "Asha",
			},
		},
		"list": []any{map[string]any{"email": "x@y.z"}},
	}

	out := MaskPII(input)
	data := out["data"].(map[string]any)
	customer := data["customer_details"].(map[string]any)
	assert.Equal(t, "a****@example.com", customer["customer_email"])
	assert.Equal(t, "****3210", customer["customer_phone"])
	assert.Equal(t, "A****", customer["customer_name"])
	assert.Equal(t, "DON_1", data["order"].(map[string]any)["order_id"])
	assert.Equal(t, "x****@y.z", out["list"].([]any)[0].(map[string]any)["email"])

	// input untouched
	assert.Equal(t, "asha@example.com", input["data"].(map[string]any)["customer_details"].(map[string]any)["customer_email"])
}
