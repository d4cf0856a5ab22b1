package twilio

import (
	"encoding/xml"
	"fmt"
)

// TwiML documents returned to Twilio when a call connects. Only the
// <Connect><Stream> verb is modelled; the bridge never speaks other verbs.

type voiceResponse struct {
	XMLName xml.Name `xml:"Response"`
	Connect *connect `xml:"Connect,omitempty"`
}

type connect struct {
	Stream *stream `xml:"Stream,omitempty"`
}

type stream struct {
	URL        string            `xml:"url,attr"`
	Parameters []streamParameter `xml:"Parameter,omitempty"`
}

type streamParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// StreamTwiML renders a TwiML document instructing Twilio to open a
// bidirectional media stream to wsURL. params become custom <Parameter>
// elements delivered in the stream's start frame.
func StreamTwiML(wsURL string, params map[string]string) (string, error) {
	st := &stream{URL: wsURL}
	for name, value := range params {
		st.Parameters = append(st.Parameters, streamParameter{Name: name, Value: value})
	}

	doc := voiceResponse{Connect: &connect{Stream: st}}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render TwiML: %w", err)
	}
	return xml.Header + string(out), nil
}
