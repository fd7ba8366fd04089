package channel

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// ErrClosed is returned by the calls of a closed client.
var ErrClosed = errors.New("channel closed")

// Client reads the modules of a remote project over a websocket. It implements
// the FetchFile and ListFiles methods of the lazy loader providers.
type Client struct {
	conn      *websocket.Conn
	writeLock sync.Mutex
	lock      sync.Mutex
	nextID    uint64
	pending   map[uint64]chan *Message
	changes   chan Change
	closed    chan struct{}
	err       error
	// Timeout bounds the calls made without a context, 30 seconds by default.
	Timeout time.Duration
}

// Dial connects to the `/@modules` endpoint of a project server.
func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:    conn,
		pending: map[uint64]chan *Message{},
		changes: make(chan Change, 64),
		closed:  make(chan struct{}),
		Timeout: 30 * time.Second,
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	var err error
	for {
		var data []byte
		_, data, err = c.conn.ReadMessage()
		if err != nil {
			break
		}
		var msg Message
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		switch {
		case msg.ID > 0:
			c.lock.Lock()
			ch, ok := c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.lock.Unlock()
			if ok {
				ch <- &msg
			}
		case msg.Type == TypeChange || msg.Type == TypeRemove:
			select {
			case c.changes <- Change{Path: msg.Path, Removed: msg.Type == TypeRemove}:
			default:
				// nobody listens
			}
		}
	}

	c.lock.Lock()
	if c.err == nil {
		c.err = err
	}
	c.pending = map[uint64]chan *Message{}
	c.lock.Unlock()
	close(c.closed)
	close(c.changes)
}

// call sends the request and waits for its response.
func (c *Client) call(ctx context.Context, req *Message) (*Message, error) {
	ch := make(chan *Message, 1)
	c.lock.Lock()
	select {
	case <-c.closed:
		c.lock.Unlock()
		return nil, ErrClosed
	default:
	}
	c.nextID++
	req.ID = c.nextID
	c.pending[req.ID] = ch
	c.lock.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	c.writeLock.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	c.writeLock.Unlock()
	if err != nil {
		c.forget(req.ID)
		return nil, err
	}

	select {
	case res := <-ch:
		if res.Error != "" {
			return nil, errors.New(res.Error)
		}
		return res, nil
	case <-c.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		c.forget(req.ID)
		return nil, ctx.Err()
	}
}

func (c *Client) forget(id uint64) {
	c.lock.Lock()
	delete(c.pending, id)
	c.lock.Unlock()
}

// FetchFile requests the source of the module path.
func (c *Client) FetchFile(ctx context.Context, path string) (string, bool, error) {
	res, err := c.call(ctx, &Message{Type: TypeGetModuleFile, Path: path})
	if err != nil {
		return "", false, err
	}
	return res.Content, res.Exists, nil
}

// ListFiles requests the paths of the project files.
func (c *Client) ListFiles() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()
	res, err := c.call(ctx, &Message{Type: TypeListFiles})
	if err != nil {
		return nil, err
	}
	return res.Files, nil
}

// Changes returns the file changes pushed by the server. The channel is closed
// with the connection, changes are dropped when nobody receives them.
func (c *Client) Changes() <-chan Change {
	return c.changes
}

// Close closes the connection.
func (c *Client) Close() error {
	c.lock.Lock()
	if c.err == nil {
		c.err = ErrClosed
	}
	c.lock.Unlock()
	c.writeLock.Lock()
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeLock.Unlock()
	err := c.conn.Close()
	<-c.closed
	return err
}

// Err returns the error that closed the connection.
func (c *Client) Err() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.err
}
