package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"testing"
)

func twilioSign(authToken, requestURL string, form url.Values) string {
	payload := requestURL
	// Twilio concatenates key+value in key-sorted order; mirror that here with
	// the known fixture keys.
	for _, k := range []string{"CallSid", "CallStatus", "From", "To"} {
		for _, v := range form[k] {
			payload += k + v
		}
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func statusForm() url.Values {
	return url.Values{
		"CallSid":    {"CA00000000000000000000000000000001"},
		"CallStatus": {"completed"},
		"From":       {"+15550001111"},
		"To":         {"+15552223333"},
	}
}

func TestVerifyTwilioSignature(t *testing.T) {
	const token = "test-auth-token"
	const reqURL = "https://bridge.example.com/webhooks/twilio/status"
	form := statusForm()

	sig := twilioSign(token, reqURL, form)
	if err := VerifyTwilioSignature(token, reqURL, form, sig); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}
}

func TestVerifyTwilioSignature_Tampered(t *testing.T) {
	const token = "test-auth-token"
	const reqURL = "https://bridge.example.com/webhooks/twilio/status"
	form := statusForm()

	sig := twilioSign(token, reqURL, form)
	form.Set("CallStatus", "failed")
	if err := VerifyTwilioSignature(token, reqURL, form, sig); err == nil {
		t.Error("tampered form accepted")
	}
}

func TestVerifyTwilioSignature_WrongToken(t *testing.T) {
	const reqURL = "https://bridge.example.com/webhooks/twilio/status"
	form := statusForm()

	sig := twilioSign("other-token", reqURL, form)
	if err := VerifyTwilioSignature("test-auth-token", reqURL, form, sig); err == nil {
		t.Error("signature from wrong token accepted")
	}
}

func TestVerifyTwilioSignature_MissingSignature(t *testing.T) {
	if err := VerifyTwilioSignature("test-auth-token", "https://bridge.example.com/x", statusForm(), ""); err == nil {
		t.Error("missing signature accepted")
	}
}

func TestVerifyTwilioSignature_NoTokenSkips(t *testing.T) {
	if err := VerifyTwilioSignature("", "https://bridge.example.com/x", statusForm(), "whatever"); err != nil {
		t.Errorf("verification not skipped without token: %v", err)
	}
}
