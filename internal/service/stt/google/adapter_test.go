package google

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"live-transcription-service/internal/models"
	"live-transcription-service/internal/observability/metrics"
	"live-transcription-service/internal/service/stt"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LanguageCode != "en-IN" {
		t.Errorf("expected default language 'en-IN', got %s", cfg.LanguageCode)
	}
	if !cfg.InterimResults {
		t.Error("expected interim results enabled by default")
	}
	if !cfg.Punctuation {
		t.Error("expected automatic punctuation enabled by default")
	}
	if cfg.AudioEncoding != "LINEAR16" {
		t.Errorf("expected default encoding 'LINEAR16', got %s", cfg.AudioEncoding)
	}
	if cfg.ChunkBytes != 8820 {
		t.Errorf("expected chunk of 8820 bytes, got %d", cfg.ChunkBytes)
	}
}

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"MULAW", speechpb.RecognitionConfig_MULAW},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS},
		{"ENCODING_UNSPECIFIED", speechpb.RecognitionConfig_LINEAR16}, // fallback
		{"linear16", speechpb.RecognitionConfig_LINEAR16},             // lowercase -> fallback
		{"invalid", speechpb.RecognitionConfig_LINEAR16},
		{"", speechpb.RecognitionConfig_LINEAR16},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestStreamingConfig(t *testing.T) {
	cfg := DefaultConfig()
	sc := streamingConfig(cfg, stt.Input{SampleRateHz: 44100})

	rc := sc.GetConfig()
	if rc.GetSampleRateHertz() != 44100 {
		t.Errorf("expected sample rate 44100, got %d", rc.GetSampleRateHertz())
	}
	if rc.GetAudioChannelCount() != 1 {
		t.Errorf("expected channel count to default to 1, got %d", rc.GetAudioChannelCount())
	}
	if rc.GetLanguageCode() != "en-IN" {
		t.Errorf("expected language en-IN, got %s", rc.GetLanguageCode())
	}
	if !rc.GetEnableAutomaticPunctuation() {
		t.Error("expected automatic punctuation")
	}
	if rc.GetEncoding() != speechpb.RecognitionConfig_LINEAR16 {
		t.Errorf("expected LINEAR16, got %v", rc.GetEncoding())
	}
	if !sc.GetInterimResults() {
		t.Error("expected interim results")
	}
}

func TestResultEvents(t *testing.T) {
	resp := &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "hello world."}, {Transcript: "hello word"}}, IsFinal: true},
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "how are"}}},
			{}, // no alternatives
		},
	}

	events := resultEvents(resp)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != models.Final || events[0].Text != "hello world." {
		t.Errorf("unexpected first event: %s %q", events[0].Kind, events[0].Text)
	}
	if events[1].Kind != models.Interim || events[1].Text != "how are" {
		t.Errorf("unexpected second event: %s %q", events[1].Kind, events[1].Text)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		stopped bool
		want    models.EventKind
	}{
		{"eof", io.EOF, false, models.Ended},
		{"canceled after stop", status.Error(codes.Canceled, "context canceled"), true, models.Ended},
		{"context canceled after stop", fmt.Errorf("recv: %w", context.Canceled), true, models.Ended},
		{"canceled without stop", status.Error(codes.Canceled, "context canceled"), false, models.Canceled},
		{"unauthenticated", status.Error(codes.Unauthenticated, "bad key"), false, models.Canceled},
		{"plain error", errors.New("boom"), false, models.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Adapter{
				metrics: metrics.NewMetrics(prometheus.NewRegistry()),
				logger:  zerolog.Nop(),
				stopped: tt.stopped,
			}
			if got := a.classify(tt.err); got != tt.want {
				t.Errorf("classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestAdapter_StopBeforeStart(t *testing.T) {
	a := &Adapter{}
	if err := a.Stop(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

// recvResult is one scripted Recv outcome.
type recvResult struct {
	resp *speechpb.StreamingRecognizeResponse
	err  error
}

// fakeStream scripts Recv results and records what is sent.
type fakeStream struct {
	grpc.ClientStream

	mu         sync.Mutex
	recv       []recvResult
	sent       []*speechpb.StreamingRecognizeRequest
	closedSend bool
}

func (f *fakeStream) Send(req *speechpb.StreamingRecognizeRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	return nil
}

func (f *fakeStream) Recv() (*speechpb.StreamingRecognizeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recv) == 0 {
		return nil, io.EOF
	}
	r := f.recv[0]
	f.recv = f.recv[1:]
	return r.resp, r.err
}

func (f *fakeStream) CloseSend() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closedSend = true
	return nil
}

// recordingSink collects pushed events.
type recordingSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recordingSink) Push(ev models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func result(text string, final bool) recvResult {
	return recvResult{resp: &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{{
			Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: text}},
			IsFinal:      final,
		}},
	}}
}

func newLoopAdapter(m *metrics.Metrics) *Adapter {
	return &Adapter{
		cfg:     Config{ChunkBytes: 8820},
		metrics: m,
		logger:  zerolog.Nop(),
		done:    make(chan struct{}),
	}
}

func firstResultSamples(t *testing.T, m *metrics.Metrics) uint64 {
	t.Helper()
	var out dto.Metric
	h := m.STTFirstResultLatency.WithLabelValues(providerName).(prometheus.Histogram)
	if err := h.Write(&out); err != nil {
		t.Fatalf("read histogram: %v", err)
	}
	return out.GetHistogram().GetSampleCount()
}

type kindText struct {
	kind models.EventKind
	text string
}

func assertEvents(t *testing.T, got []models.Event, want []kindText) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d: %+v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i].Kind != w.kind || got[i].Text != w.text {
			t.Errorf("event %d = %s %q, want %s %q", i, got[i].Kind, got[i].Text, w.kind, w.text)
		}
	}
}

func TestReceiveLoop(t *testing.T) {
	tests := []struct {
		name    string
		recv    []recvResult
		stopped bool
		want    []kindText
		// samples is the expected number of first-result observations
		samples uint64
	}{
		{
			name: "interim and final then eof",
			recv: []recvResult{
				result("hel", false),
				result("hello", false),
				result("hello world", true),
				{resp: &speechpb.StreamingRecognizeResponse{}}, // no results
				result("how", false),
				{err: io.EOF},
			},
			want: []kindText{
				{models.Interim, "hel"},
				{models.Interim, "hello"},
				{models.Final, "hello world"},
				{models.Interim, "how"},
				{models.Ended, ""},
			},
			samples: 1,
		},
		{
			name: "service error cancels",
			recv: []recvResult{
				result("partial", false),
				{resp: &speechpb.StreamingRecognizeResponse{
					Error: &rpcstatus.Status{Code: int32(codes.InvalidArgument), Message: "bad audio"},
				}},
				result("never seen", true),
			},
			want: []kindText{
				{models.Interim, "partial"},
				{models.Canceled, ""},
			},
			samples: 1,
		},
		{
			name: "transport error cancels",
			recv: []recvResult{
				{err: status.Error(codes.Unavailable, "connection reset")},
			},
			want:    []kindText{{models.Canceled, ""}},
			samples: 0,
		},
		{
			name: "canceled after stop ends",
			recv: []recvResult{
				result("done.", true),
				{err: status.Error(codes.Canceled, "context canceled")},
			},
			stopped: true,
			want: []kindText{
				{models.Final, "done."},
				{models.Ended, ""},
			},
			samples: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.NewMetrics(prometheus.NewRegistry())
			a := newLoopAdapter(m)
			a.stopped = tt.stopped
			sink := &recordingSink{}

			a.receiveLoop(&fakeStream{recv: tt.recv}, sink, time.Now())

			select {
			case <-a.done:
			default:
				t.Error("expected done to be closed when the loop exits")
			}
			assertEvents(t, sink.events, tt.want)
			if got := firstResultSamples(t, m); got != tt.samples {
				t.Errorf("first result recorded %d times, want %d", got, tt.samples)
			}
		})
	}
}

func TestReceiveLoop_ServiceErrorCounted(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	a := newLoopAdapter(m)
	stream := &fakeStream{recv: []recvResult{{resp: &speechpb.StreamingRecognizeResponse{
		Error: &rpcstatus.Status{Code: int32(codes.ResourceExhausted), Message: "quota"},
	}}}}

	a.receiveLoop(stream, &recordingSink{}, time.Now())

	got := testutil.ToFloat64(m.STTErrors.WithLabelValues(providerName, codes.ResourceExhausted.String()))
	if got != 1 {
		t.Errorf("expected one counted error, got %v", got)
	}
}

func TestSendLoop_ChunksAudioAndClosesSend(t *testing.T) {
	a := newLoopAdapter(metrics.NewMetrics(prometheus.NewRegistry()))
	a.cfg.ChunkBytes = 1000
	audio := bytes.Repeat([]byte{1, 2}, 1250) // 2500 bytes
	stream := &fakeStream{}

	a.sendLoop(stream, bytes.NewReader(audio))

	if !stream.closedSend {
		t.Error("expected CloseSend after input is exhausted")
	}
	wantSizes := []int{1000, 1000, 500}
	if len(stream.sent) != len(wantSizes) {
		t.Fatalf("expected %d requests, got %d", len(wantSizes), len(stream.sent))
	}
	var joined []byte
	for i, req := range stream.sent {
		chunk := req.GetAudioContent()
		if len(chunk) != wantSizes[i] {
			t.Errorf("chunk %d has %d bytes, want %d", i, len(chunk), wantSizes[i])
		}
		joined = append(joined, chunk...)
	}
	if !bytes.Equal(joined, audio) {
		t.Error("sent audio does not match input")
	}
}
