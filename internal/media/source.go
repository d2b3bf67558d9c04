package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"

	"github.com/gorilla/websocket"

	"github.com/esphome/voice-kit/internal/logging"
)

// openSource 打开音频源，返回字节流和用于格式识别的名字
// 支持本地路径、file://、http(s):// 以及 ws(s):// 推流
func (p *Producer) openSource(ctx context.Context, rawURL string) (io.ReadCloser, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("parse source url %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "", "file":
		name := u.Path
		if u.Scheme == "" {
			name = rawURL
		}
		f, err := os.Open(name)
		if err != nil {
			return nil, "", fmt.Errorf("open source file: %w", err)
		}
		return f, path.Base(name), nil

	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, "", fmt.Errorf("build request: %w", err)
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("fetch %s: %w", rawURL, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, "", fmt.Errorf("fetch %s: unexpected status %s", rawURL, resp.Status)
		}
		return resp.Body, path.Base(u.Path), nil

	case "ws", "wss":
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
		if err != nil {
			return nil, "", fmt.Errorf("dial %s: %w", rawURL, err)
		}
		logging.Infof("media: websocket source connected: %s", rawURL)
		return &wsReader{conn: conn}, path.Base(u.Path), nil
	}

	return nil, "", fmt.Errorf("unsupported source scheme %q", u.Scheme)
}

// wsReader 把 WebSocket 二进制消息序列适配成 io.Reader
// 对端发送的每条二进制消息是一段裸 PCM；收到关闭帧时返回 EOF
type wsReader struct {
	conn *websocket.Conn
	rest []byte
}

func (r *wsReader) Read(p []byte) (int, error) {
	for len(r.rest) == 0 {
		msgType, data, err := r.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, err
		}
		if msgType == websocket.BinaryMessage {
			r.rest = data
		}
	}

	n := copy(p, r.rest)
	r.rest = r.rest[n:]
	return n, nil
}

func (r *wsReader) Close() error {
	_ = r.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), closeDeadline())
	return r.conn.Close()
}
