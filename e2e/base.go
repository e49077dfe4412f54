package e2e

import (
	"chat-gateway/auth"
	"chat-gateway/transport/stomp"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// BaseGatewaySuite talks to a running gateway over its three surfaces:
// STOMP over websocket, the HTTP API and gRPC.
type BaseGatewaySuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseGatewaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.HTTPAddr == "" {
		s.T().Skip("E2E_HTTP_ADDR not set, no gateway to test against")
	}
}

func (s *BaseGatewaySuite) header(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// GrpcConn initializes a gRPC connection with logging, colors, and JSON debugging
func (s *BaseGatewaySuite) GrpcConn(t *testing.T, name string, addr string) *grpc.ClientConn {
	s.header(t, name)

	marshaler := protojson.MarshalOptions{
		UseProtoNames:   true,
		Multiline:       true,
		EmitUnpopulated: true,
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)

			logBuilder := strings.Builder{}
			fmt.Fprintf(&logBuilder, "GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))

			if s.Config.DebugJSON {
				fmt.Fprintln(&logBuilder, "\nREQUEST:")
				fmt.Fprintln(&logBuilder, marshaler.Format(req.(proto.Message)))
				if err != nil {
					fmt.Fprintln(&logBuilder, "ERROR:", err)
				} else {
					fmt.Fprintln(&logBuilder, "RESPONSE:")
					fmt.Fprintln(&logBuilder, marshaler.Format(reply.(proto.Message)))
				}
			}
			t.Log(logBuilder.String())
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+addr)
	return conn
}

func (s *BaseGatewaySuite) Token(subject string) string {
	s.Require().NotEmpty(s.Config.JwtSecret, "JWT_SECRET is required to sign scenario tokens")
	token, err := auth.GenerateToken([]byte(s.Config.JwtSecret), s.Config.JwtIssuer,
		[]string{s.Config.JwtAudience}, subject, nil, 10*time.Minute)
	s.Require().NoError(err)
	return token
}

// Connect opens a websocket and completes the STOMP CONNECT handshake as subject.
func (s *BaseGatewaySuite) Connect(name, subject string) *websocket.Conn {
	s.header(s.T(), name)
	dialer := websocket.Dialer{Subprotocols: []string{"v12.stomp"}, HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(fmt.Sprintf("ws://%s/ws", s.Config.HTTPAddr), nil)
	s.Require().NoError(err, "Failed to open websocket at "+s.Config.HTTPAddr)

	connect := stomp.Frame{Command: stomp.Connect}
	connect.Set("accept-version", stomp.Version)
	connect.Set("Authorization", "Bearer "+s.Token(subject))
	s.Send(conn, connect)
	s.Require().Equal(stomp.Connected, s.Read(conn).Command)
	return conn
}

func (s *BaseGatewaySuite) Send(conn *websocket.Conn, frame stomp.Frame) {
	s.T().Logf("STOMP >>> %s %v", frame.Command, frame.Headers)
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, frame.Bytes()))
}

func (s *BaseGatewaySuite) Read(conn *websocket.Conn) stomp.Frame {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	_, data, err := conn.ReadMessage()
	s.Require().NoError(err)
	frame, err := stomp.Parse(data)
	s.Require().NoError(err)
	s.T().Logf("STOMP <<< %s %v", frame.Command, frame.Headers)
	return frame
}
