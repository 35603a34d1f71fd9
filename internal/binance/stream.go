package binance

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const defaultFuturesWSBaseURL = "wss://fstream.binance.com"

// KlineEvent is a live candlestick update from the combined stream.
type KlineEvent struct {
	Symbol   string
	Interval string
	Kline    Kline
	IsClosed bool
}

// StreamClient maintains a combined kline websocket subscription with
// automatic reconnect. Events are delivered on the channel returned by
// Events; the channel is never closed while the client is running.
type StreamClient struct {
	baseURL   string
	symbols   []string
	interval  string
	events    chan KlineEvent
	stopChan  chan struct{}
	wg        sync.WaitGroup
	logger    zerolog.Logger
	mu        sync.Mutex
	running   bool
	reconnect time.Duration
}

func NewStreamClient(baseURL string, symbols []string, interval string, logger zerolog.Logger) *StreamClient {
	if baseURL == "" {
		baseURL = defaultFuturesWSBaseURL
	}
	return &StreamClient{
		baseURL:   baseURL,
		symbols:   symbols,
		interval:  interval,
		events:    make(chan KlineEvent, 256),
		stopChan:  make(chan struct{}),
		logger:    logger.With().Str("component", "stream").Logger(),
		reconnect: 5 * time.Second,
	}
}

func (s *StreamClient) Events() <-chan KlineEvent { return s.events }

// Start launches the read loop. Safe to call once.
func (s *StreamClient) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("stream already running")
	}
	if len(s.symbols) == 0 {
		return fmt.Errorf("no symbols to subscribe")
	}
	s.running = true
	s.wg.Add(1)
	go s.run()
	return nil
}

// Stop closes the stream and waits for the read loop to exit.
func (s *StreamClient) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()
	close(s.stopChan)
	s.wg.Wait()
}

func (s *StreamClient) streamURL() string {
	streams := make([]string, len(s.symbols))
	for i, sym := range s.symbols {
		streams[i] = fmt.Sprintf("%s@kline_%s", strings.ToLower(sym), s.interval)
	}
	return fmt.Sprintf("%s/stream?streams=%s", s.baseURL, strings.Join(streams, "/"))
}

func (s *StreamClient) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		if err := s.readLoop(); err != nil {
			s.logger.Warn().Err(err).Dur("retry_in", s.reconnect).Msg("stream disconnected, reconnecting")
		}

		select {
		case <-s.stopChan:
			return
		case <-time.After(s.reconnect):
		}
	}
}

func (s *StreamClient) readLoop() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	s.logger.Info().Int("symbols", len(s.symbols)).Str("interval", s.interval).Msg("stream connected")

	// Close the connection when Stop is requested so ReadMessage unblocks
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.stopChan:
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopChan:
				return nil
			default:
				return fmt.Errorf("read failed: %w", err)
			}
		}

		event, err := parseKlineEvent(msg)
		if err != nil {
			s.logger.Debug().Err(err).Msg("skipping unparseable stream message")
			continue
		}

		select {
		case s.events <- *event:
		default:
			// Drop on backpressure rather than stall the socket
			s.logger.Warn().Str("symbol", event.Symbol).Msg("event channel full, dropping update")
		}
	}
}

func parseKlineEvent(msg []byte) (*KlineEvent, error) {
	var frame struct {
		Data struct {
			EventType string `json:"e"`
			Symbol    string `json:"s"`
			K         struct {
				StartTime int64  `json:"t"`
				CloseTime int64  `json:"T"`
				Interval  string `json:"i"`
				Open      string `json:"o"`
				High      string `json:"h"`
				Low       string `json:"l"`
				Close     string `json:"c"`
				Volume    string `json:"v"`
				Trades    int    `json:"n"`
				IsClosed  bool   `json:"x"`
				QuoteVol  string `json:"q"`
			} `json:"k"`
		} `json:"data"`
	}
	if err := json.Unmarshal(msg, &frame); err != nil {
		return nil, err
	}
	if frame.Data.EventType != "kline" {
		return nil, fmt.Errorf("not a kline event: %q", frame.Data.EventType)
	}
	k := frame.Data.K
	return &KlineEvent{
		Symbol:   frame.Data.Symbol,
		Interval: k.Interval,
		IsClosed: k.IsClosed,
		Kline: Kline{
			OpenTime:         k.StartTime,
			CloseTime:        k.CloseTime,
			Open:             parseFloatStr(k.Open),
			High:             parseFloatStr(k.High),
			Low:              parseFloatStr(k.Low),
			Close:            parseFloatStr(k.Close),
			Volume:           parseFloatStr(k.Volume),
			QuoteAssetVolume: parseFloatStr(k.QuoteVol),
			NumberOfTrades:   k.Trades,
		},
	}, nil
}
