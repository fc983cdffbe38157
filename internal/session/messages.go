// Package session coordinates the controller socket, viewer broadcast,
// per-stream pipeline lifecycle and tuning persistence for one stream
// identifier.
package session

// Message type tags on the wire.
const (
	TypeConfig            = "config"
	TypeSessionInit       = "session_init"
	TypeInterimResult     = "interim_result"
	TypeFinalResult       = "final_result"
	TypeTranslationResult = "translation_result"
	TypeTuningAck         = "tuning_ack"

	TypeStreamStart = "stream_start"
	TypeTuning      = "tuning"
)

// Outbound is any server-to-client JSON message.
type Outbound interface {
	MsgType() string
}

// Config announces the active target languages to viewers. Publishing one
// clears the replay cache.
type Config struct {
	Type      string   `json:"type"`
	Languages []string `json:"languages"`
}

func NewConfig(languages []string) Config {
	if languages == nil {
		languages = []string{}
	}
	return Config{Type: TypeConfig, Languages: languages}
}

func (Config) MsgType() string { return TypeConfig }

// InitSettings is the settings payload of a session_init message.
type InitSettings struct {
	SilenceThreshold  float64                `json:"silence_threshold"`
	TranslationEngine string                 `json:"translation_engine"`
	WhisperParams     map[string]interface{} `json:"whisper_params"`
}

// SessionInit is sent to the controller once, immediately after accept.
type SessionInit struct {
	Type     string       `json:"type"`
	Settings InitSettings `json:"settings"`
}

func (SessionInit) MsgType() string { return TypeSessionInit }

// InterimResult carries the growing aggregation buffer. Fire-and-forget,
// never cached.
type InterimResult struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func NewInterimResult(text string) InterimResult {
	return InterimResult{Type: TypeInterimResult, Text: text}
}

func (InterimResult) MsgType() string { return TypeInterimResult }

// FinalResult is a flushed sentence with its identifier.
type FinalResult struct {
	Type     string `json:"type"`
	Original string `json:"original"`
	ID       string `json:"id"`
}

func NewFinalResult(original, id string) FinalResult {
	return FinalResult{Type: TypeFinalResult, Original: original, ID: id}
}

func (FinalResult) MsgType() string { return TypeFinalResult }

// TranslationResult is one language's translation of a finalized sentence.
type TranslationResult struct {
	Type       string `json:"type"`
	OriginalID string `json:"original_id"`
	Lang       string `json:"lang"`
	Text       string `json:"text"`
}

func NewTranslationResult(originalID, lang, text string) TranslationResult {
	return TranslationResult{Type: TypeTranslationResult, OriginalID: originalID, Lang: lang, Text: text}
}

func (TranslationResult) MsgType() string { return TypeTranslationResult }

// TuningAck reports the outcome of a tuning request.
type TuningAck struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (TuningAck) MsgType() string { return TypeTuningAck }

// controlMessage is the union of all controller JSON frames; fields are
// interpreted per Type.
type controlMessage struct {
	Type              string                 `json:"type"`
	Languages         []string               `json:"languages"`
	SilenceThreshold  float64                `json:"silence_threshold"`
	TranslationEngine string                 `json:"translation_engine"`
	Params            map[string]interface{} `json:"params"`
}
