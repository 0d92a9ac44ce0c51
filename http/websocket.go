package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = 30 * time.Second
	wsMaxMessageSize = 4096
)

// PredictStream 通过WebSocket提供与 POST /predict 相同的预测
type PredictStream struct {
	service  *PredictionService
	logger   *zap.Logger
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPredictStream(service *PredictionService, logger *zap.Logger, origins []string) *PredictStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PredictStream{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(origins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

func originChecker(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, allowed := range origins {
			if allowed == "*" || allowed == origin {
				return true
			}
		}
		return false
	}
}

func (s *PredictStream) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/predict", s.ServeHTTP)
}

func (s *PredictStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.wg.Add(1)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.wg.Done()
		// Upgrade已经写回了错误响应
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	requestID := GetRequestID(r.Context())
	logger := s.logger.With(zap.String("request_id", requestID))
	logger.Info("websocket client connected", zap.String("remote", clientIP(r)))

	send := make(chan []byte, 16)
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer s.wg.Done()
		defer close(stopped)
		s.writePump(conn, send, done, logger)
	}()
	s.readPump(conn, send, stopped, logger)
	close(done)
	logger.Info("websocket client disconnected")
}

// readPump 读取请求并把响应放入发送队列，返回时连接已关闭
func (s *PredictStream) readPump(conn *websocket.Conn, send chan<- []byte, stopped <-chan struct{}, logger *zap.Logger) {
	defer conn.Close()

	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		reply, err := json.Marshal(s.handleMessage(payload, logger))
		if err != nil {
			logger.Error("failed to encode websocket reply", zap.Error(err))
			continue
		}

		if !s.enqueue(send, reply, stopped) {
			return
		}
	}
}

// enqueue 写协程退出或服务关闭时返回false
func (s *PredictStream) enqueue(send chan<- []byte, reply []byte, stopped <-chan struct{}) bool {
	select {
	case send <- reply:
		return true
	case <-stopped:
		return false
	case <-s.ctx.Done():
		return false
	}
}

func (s *PredictStream) handleMessage(payload []byte, logger *zap.Logger) any {
	req, details := ParsePredictRequest(bytes.NewReader(payload))
	if len(details) > 0 {
		return ValidationErrorResponse{Detail: details}
	}
	resp, err := s.service.Predict(*req.Year)
	if err != nil {
		logger.Warn("prediction failed", zap.Int("year", *req.Year), zap.Error(err))
		return ErrorResponse{Error: predictErrorMessage(err)}
	}
	return resp
}

// writePump 串行写出响应并定期发送ping
func (s *PredictStream) writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}, logger *zap.Logger) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message := <-send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("websocket write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return

		case <-s.ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			return
		}
	}
}

// Close 关闭所有连接并等待写协程退出
func (s *PredictStream) Close() {
	s.cancel()
	s.wg.Wait()
}
