package jwt

import (
	"testing"
)

// FuzzParse feeds arbitrary strings to Parse. Invalid input must be rejected
// with an error and never panic.
func FuzzParse(f *testing.F) {
	mgr, err := NewManager(testConfig())
	if err != nil {
		f.Fatal(err)
	}

	validToken, _, err := mgr.Issue(PurposeAccess, "uid1")
	if err != nil {
		f.Fatal(err)
	}

	f.Add(validToken)
	f.Add("")
	f.Add("not.a.jwt")
	f.Add("eyJhbGciOiJIUzI1NiJ9.eyJwdXJwb3NlIjoiYm9ndXMifQ.invalid")
	f.Add("eyJhbGciOiJub25lIn0.eyJ1aWQiOiJ0ZXN0In0.")

	f.Fuzz(func(t *testing.T, input string) {
		claims, err := mgr.Parse(PurposeAccess, input)
		if err != nil {
			return
		}
		if claims == nil {
			t.Fatal("Parse returned nil claims without error")
		}
	})
}
