package twilio

import (
	"encoding/xml"
	"strings"
	"testing"
)

func TestStreamTwiML(t *testing.T) {
	out, err := StreamTwiML("wss://bridge.example.com/outbound-media-stream", map[string]string{
		"prompt": "You are a helpful assistant",
	})
	if err != nil {
		t.Fatalf("StreamTwiML failed: %v", err)
	}

	if !strings.HasPrefix(out, xml.Header) {
		t.Error("missing XML declaration")
	}

	var doc struct {
		XMLName xml.Name `xml:"Response"`
		Connect struct {
			Stream struct {
				URL        string `xml:"url,attr"`
				Parameters []struct {
					Name  string `xml:"name,attr"`
					Value string `xml:"value,attr"`
				} `xml:"Parameter"`
			} `xml:"Stream"`
		} `xml:"Connect"`
	}
	if err := xml.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not valid XML: %v", err)
	}

	if doc.Connect.Stream.URL != "wss://bridge.example.com/outbound-media-stream" {
		t.Errorf("stream url = %q", doc.Connect.Stream.URL)
	}
	if len(doc.Connect.Stream.Parameters) != 1 {
		t.Fatalf("parameter count = %d, want 1", len(doc.Connect.Stream.Parameters))
	}
	p := doc.Connect.Stream.Parameters[0]
	if p.Name != "prompt" || p.Value != "You are a helpful assistant" {
		t.Errorf("parameter = %+v", p)
	}
}

func TestStreamTwiML_NoParams(t *testing.T) {
	out, err := StreamTwiML("wss://bridge.example.com/outbound-media-stream", nil)
	if err != nil {
		t.Fatalf("StreamTwiML failed: %v", err)
	}
	if strings.Contains(out, "<Parameter") {
		t.Errorf("unexpected Parameter element in %s", out)
	}
}
