package relay

import "encoding/json"

// Wire shapes for the Twilio media-stream side of the relay. Audio payloads
// stay base64-encoded strings end to end; the relay never decodes them.

type telephonyFrame struct {
	Event string `json:"event"`
	Start *struct {
		StreamSid string `json:"streamSid"`
		CallSid   string `json:"callSid"`
	} `json:"start,omitempty"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
}

type mediaEgressFrame struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

// DecodeTelephonyFrame parses one inbound frame from the Twilio media stream.
// Malformed media frames yield *DecodeError (droppable); malformed start
// frames and unknown events yield *ProtocolError.
func DecodeTelephonyFrame(raw []byte) (TelephonyEvent, error) {
	var frame telephonyFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return TelephonyEvent{}, &DecodeError{Reason: "invalid JSON frame"}
	}

	switch frame.Event {
	case "start":
		if frame.Start == nil || frame.Start.StreamSid == "" || frame.Start.CallSid == "" {
			return TelephonyEvent{}, &ProtocolError{Reason: "start frame missing streamSid or callSid"}
		}
		return TelephonyEvent{
			Type:      TelephonyStart,
			StreamSid: frame.Start.StreamSid,
			CallSid:   frame.Start.CallSid,
		}, nil
	case "media":
		if frame.Media == nil || frame.Media.Payload == "" {
			return TelephonyEvent{}, &DecodeError{Reason: "media frame missing payload"}
		}
		return TelephonyEvent{Type: TelephonyMedia, Payload: frame.Media.Payload}, nil
	case "stop":
		return TelephonyEvent{Type: TelephonyStop}, nil
	case "":
		return TelephonyEvent{}, &ProtocolError{Reason: "frame missing event field"}
	default:
		// Twilio also sends connected/mark/dtmf events; they carry nothing the
		// relay needs.
		return TelephonyEvent{}, &DecodeError{Reason: "unhandled event " + frame.Event}
	}
}

// EncodeTelephonyMedia wraps one agent audio chunk in the media frame Twilio
// expects on the stream identified by streamSid.
func EncodeTelephonyMedia(streamSid, chunk string) []byte {
	frame := mediaEgressFrame{Event: "media", StreamSid: streamSid}
	frame.Media.Payload = chunk
	data, _ := json.Marshal(frame)
	return data
}
