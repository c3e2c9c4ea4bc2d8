package ws

import (
	"sync"
	"time"

	"arbot/internal/logger"
	"arbot/internal/models"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	bookDepth     = 50
	tradesToKeep  = 500
	pingInterval  = 20 * time.Second
	readLimitSize = 2 << 20
)

// Client keeps the latest order book and public trades of one symbol from the public stream.
type Client struct {
	url          string
	log          *logger.Logger
	conn         *websocket.Conn
	writeMu      sync.Mutex
	stopCh       chan struct{}
	stopOnce     sync.Once
	reconnectMin time.Duration
	reconnectMax time.Duration
	now          func() time.Time

	// subMu guards the subscription, which readLoop reads on reconnect.
	subMu  sync.RWMutex
	symbol string
	topics []string

	mu        sync.RWMutex
	bids      map[float64]float64
	asks      map[float64]float64
	synced    bool
	bookTime  time.Time
	trades    []models.Trade
	tradeTime time.Time
}

type Message struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	TS    int64           `json:"ts"`
	Op    string          `json:"op"`
	Data  json.RawMessage `json:"data"`
}

type SubscribeMessage struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

type bookData struct {
	Symbol string      `json:"s"`
	Bids   [][2]string `json:"b"`
	Asks   [][2]string `json:"a"`
	Update int64       `json:"u"`
}

type tradeData struct {
	Time   int64  `json:"T"`
	Symbol string `json:"s"`
	Side   string `json:"S"`
	Size   string `json:"v"`
	Price  string `json:"p"`
	ID     string `json:"i"`
}
