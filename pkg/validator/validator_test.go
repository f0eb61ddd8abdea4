package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

type testPayload struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Age      int    `json:"age" validate:"gte=18"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := testPayload{
		Username: "alice",
		Email:    "alice@example.com",
		Age:      20,
	}

	if err := ValidateStruct(payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateStructFailures(t *testing.T) {
	payload := testPayload{
		Username: "",
		Email:    "invalid",
		Age:      10,
	}

	err := ValidateStruct(payload)
	if err == nil {
		t.Fatal("expected validation error")
	}

	vErrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	if len(vErrs) != 3 {
		t.Fatalf("expected 3 validation errors, got %d", len(vErrs))
	}

	foundEmail := false
	for _, v := range vErrs {
		if v.Field == "email" {
			foundEmail = true
		}
	}

	if !foundEmail {
		t.Fatal("expected email field to be present in validation errors")
	}
}

func TestRegisterValidation(t *testing.T) {
	err := RegisterValidation("hunarmitra", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == "hunarmitra"
	})
	if err != nil {
		t.Fatalf("register validation: %v", err)
	}

	type custom struct {
		Value string `validate:"hunarmitra"`
	}

	if err := ValidateStruct(custom{Value: "hunarmitra"}); err != nil {
		t.Fatalf("expected validation to pass, got %v", err)
	}
	if err := ValidateStruct(custom{Value: "other"}); err == nil {
		t.Fatal("expected validation to fail for non-matching value")
	}
}

func TestPhoneRule(t *testing.T) {
	type contact struct {
		Phone string `json:"contact_phone" validate:"required,phone"`
	}

	if err := ValidateStruct(contact{Phone: "+91 98765 43210"}); err != nil {
		t.Fatalf("expected phone to validate, got %v", err)
	}
	err := ValidateStruct(contact{Phone: "call-me"})
	if err == nil {
		t.Fatal("expected invalid phone to fail")
	}
	vErrs, ok := err.(ValidationErrors)
	if !ok || len(vErrs) != 1 || vErrs[0].Field != "contact_phone" || vErrs[0].Tag != "phone" {
		t.Fatalf("unexpected validation errors: %v", err)
	}
}

func TestPlatformRule(t *testing.T) {
	type device struct {
		Platform string `validate:"platform"`
	}

	for _, platform := range []string{"android", "ios", "web", "IOS"} {
		if err := ValidateStruct(device{Platform: platform}); err != nil {
			t.Fatalf("expected %s to validate, got %v", platform, err)
		}
	}
	if err := ValidateStruct(device{Platform: "blackberry"}); err == nil {
		t.Fatal("expected unsupported platform to fail")
	}
}
