package channel

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/ije/gox/log"
)

// Source is the project a server connection reads from.
type Source interface {
	FetchFile(ctx context.Context, path string) (content string, ok bool, err error)
	ListFiles() ([]string, error)
}

// ServerConn answers the requests of a client connection.
type ServerConn struct {
	conn      *websocket.Conn
	source    Source
	logger    *log.Logger
	writeLock sync.Mutex
	lock      sync.Mutex
	served    map[string]struct{}
}

// NewServerConn wraps an upgraded websocket connection.
func NewServerConn(conn *websocket.Conn, source Source, logger *log.Logger) *ServerConn {
	return &ServerConn{
		conn:   conn,
		source: source,
		logger: logger,
		served: map[string]struct{}{},
	}
}

// Serve reads the requests until the connection is closed or the context is done.
// Requests are answered concurrently.
func (s *ServerConn) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var req Message
		if err := json.Unmarshal(data, &req); err != nil || req.ID == 0 {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.send(s.handle(ctx, &req))
		}()
	}
}

func (s *ServerConn) handle(ctx context.Context, req *Message) *Message {
	res := &Message{ID: req.ID}
	switch req.Type {
	case TypeGetModuleFile:
		content, ok, err := s.source.FetchFile(ctx, req.Path)
		if err != nil {
			if s.logger != nil {
				s.logger.Warnf("channel: get %s: %v", req.Path, err)
			}
			res.Error = err.Error()
			break
		}
		s.lock.Lock()
		s.served[req.Path] = struct{}{}
		s.lock.Unlock()
		res.Content = content
		res.Exists = ok
	case TypeListFiles:
		files, err := s.source.ListFiles()
		if err != nil {
			res.Error = err.Error()
			break
		}
		res.Files = files
	default:
		res.Error = "unknown message type: " + req.Type
	}
	return res
}

// Notify pushes a file change to the client.
func (s *ServerConn) Notify(change Change) error {
	msg := &Message{Type: TypeChange, Path: change.Path}
	if change.Removed {
		msg.Type = TypeRemove
	}
	return s.send(msg)
}

// Served returns the paths requested by the client, sorted.
func (s *ServerConn) Served() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	paths := make([]string, 0, len(s.served))
	for p := range s.served {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (s *ServerConn) send(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}
