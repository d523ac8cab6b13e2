// Package stream implements the real-time classification protocol: the
// per-request progress session with its fixed step ladder, the message types
// exchanged with streaming clients, and the registry of live connections.
package stream

// Message type discriminators, carried in every frame's "type" field.
const (
	TypeClassify = "classify"
	TypeProgress = "progress"
	TypeResult   = "result"
	TypeError    = "error"
)

// ClassifyRequest is the client→server frame asking for one classification.
// Image is base64, optionally with a data-URI prefix.
type ClassifyRequest struct {
	Type     string `json:"type"`
	Image    string `json:"image"`
	Filename string `json:"filename"`
}

// ProgressMessage is the server→client frame for one pipeline step.
type ProgressMessage struct {
	Type     string `json:"type"`
	Step     string `json:"step"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

// Record is the payload of a terminal result frame.
type Record struct {
	Filename      string   `json:"filename"`
	DocumentClass string   `json:"document_class"`
	Confidence    float64  `json:"confidence"`
	CNNConfidence float64  `json:"cnn_confidence"`
	OCRBoost      float64  `json:"ocr_boost"`
	FusionApplied bool     `json:"fusion_applied"`
	Keywords      []string `json:"keywords"`
	Summary       string   `json:"summary"`
	OCRText       *string  `json:"ocr_text"`
	Timestamp     string   `json:"timestamp"`
}

// ResultMessage is the server→client terminal success frame.
type ResultMessage struct {
	Type string `json:"type"`
	Data Record `json:"data"`
}

// ErrorMessage is the server→client terminal failure frame.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
