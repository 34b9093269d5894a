package competitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"PriceOpt/internal/domain/models"
	"PriceOpt/pkg/logger"

	"github.com/gorilla/websocket"
)

// Stream subscribes to a competitor price feed over websocket and applies
// every quote to a Book. The feed protocol is:
//
//	-> {"type":"subscribe","product_id":"PROD001"}
//	<- {"type":"quote","data":[{"product_id":"PROD001","competitor":"acme","price":28.5,"t":1717243200000}]}
type Stream struct {
	url            string
	products       []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	book           *Book
	log            *logger.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewStream(url string, products []string, book *Book, reconnectDelay, pingInterval time.Duration) *Stream {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Stream{
		url:            url,
		products:       products,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		book:           book,
		log:            logger.Nop(),
	}
}

func (s *Stream) SetLogger(l *logger.Logger) {
	if l != nil {
		s.log = l
	}
}

type wireQuote struct {
	ProductID  string  `json:"product_id"`
	Competitor string  `json:"competitor"`
	Price      float64 `json:"price"`
	T          int64   `json:"t"` // ms
}

type wireMessage struct {
	Type string      `json:"type"`
	Data []wireQuote `json:"data"`
}

// Run connects, subscribes and consumes the feed until ctx is done,
// reconnecting after reconnectDelay whenever the connection drops.
func (s *Stream) Run(ctx context.Context) error {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warn("competitor feed disconnected",
			logger.String("url", s.url),
			logger.Error(err),
			logger.Duration("retry_in", s.reconnectDelay))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *Stream) session(ctx context.Context) error {
	if err := s.connect(ctx); err != nil {
		return err
	}
	defer s.Close()
	if err := s.subscribe(); err != nil {
		return err
	}

	conn := s.current()
	if conn == nil {
		return errors.New("competitor connection closed")
	}
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.pingLoop(sessCtx)
	go func() {
		<-sessCtx.Done()
		_ = s.Close()
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("competitor read: %w", err)
		}
		s.apply(b)
	}
}

func (s *Stream) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("competitor connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.log.Info("competitor feed connected", logger.String("url", s.url), logger.Int("products", len(s.products)))
	return nil
}

func (s *Stream) subscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.products {
		if err := s.conn.WriteJSON(map[string]string{"type": "subscribe", "product_id": id}); err != nil {
			return fmt.Errorf("subscribe %s: %w", id, err)
		}
	}
	return nil
}

func (s *Stream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.conn != nil {
				_ = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
			s.mu.Unlock()
		}
	}
}

// apply decodes one frame. Frames other than quotes are ignored.
func (s *Stream) apply(b []byte) int {
	var m wireMessage
	if err := json.Unmarshal(b, &m); err != nil || m.Type != "quote" {
		return 0
	}
	n := 0
	for _, q := range m.Data {
		if s.book.Apply(models.CompetitorQuote{
			ProductID:  q.ProductID,
			Competitor: q.Competitor,
			Price:      q.Price,
			Timestamp:  time.UnixMilli(q.T).UTC(),
		}) {
			n++
		}
	}
	return n
}

func (s *Stream) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Close drops the current connection; Run reconnects unless its context is done.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}
