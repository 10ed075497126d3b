package transport

import (
	"context"
	"net"
	"sync"

	"github.com/google/uuid"
	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_logrus "github.com/grpc-ecosystem/go-grpc-middleware/logging/logrus"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpc_ctxtags "github.com/grpc-ecosystem/go-grpc-middleware/tags"
	"github.com/hyperledger/fabric-protos-go/common"
	"github.com/partiture/partiture/pkg/ledger"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	serviceName    = "partiture.Session"
	exchangeMethod = "/partiture.Session/Exchange"
)

type exchangeServer interface {
	exchange(stream grpc.ServerStream) error
}

func exchangeHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(exchangeServer).exchange(stream)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*exchangeServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Exchange",
			Handler:       exchangeHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "partiture/session.proto",
}

// Listener opens the listener a party serves on.
type Listener func(addr string) (net.Listener, error)

type Option func(*Transport)

func WithListener(l Listener) Option {
	return func(t *Transport) {
		t.listen = l
	}
}

func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(t *Transport) {
		t.dialOpts = append(t.dialOpts, opts...)
	}
}

// Transport carries sessions between nodes as bidirectional gRPC streams
// of signed envelopes.
type Transport struct {
	addresses map[string]string
	listen    Listener
	dialOpts  []grpc.DialOption
	logger    *log.Entry

	mu        sync.Mutex
	endpoints map[string]ledger.Endpoint
	servers   []*grpc.Server
}

// New creates a transport routing party names to addresses.
func New(addresses map[string]string, logger *log.Logger, opts ...Option) *Transport {
	entry := logger.WithField("transport", "grpc")
	t := &Transport{
		addresses: addresses,
		listen: func(addr string) (net.Listener, error) {
			return net.Listen("tcp", addr)
		},
		dialOpts: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithStreamInterceptor(grpc_logrus.StreamClientInterceptor(entry)),
		},
		logger:    entry,
		endpoints: make(map[string]ledger.Endpoint),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register starts serving ep on its configured address.
func (t *Transport) Register(ep ledger.Endpoint) error {
	name := ep.Identity().Name
	addr, ok := t.addresses[name]
	if !ok {
		return errors.Errorf("no address configured for %s", name)
	}
	lis, err := t.listen(addr)
	if err != nil {
		return errors.Wrapf(err, "error listening on %s", addr)
	}

	srv := grpc.NewServer(
		grpc.StreamInterceptor(grpc_middleware.ChainStreamServer(
			grpc_ctxtags.StreamServerInterceptor(),
			grpc_logrus.StreamServerInterceptor(t.logger.WithField("party", name)),
			grpc_recovery.StreamServerInterceptor(),
		)),
	)
	srv.RegisterService(&serviceDesc, &server{endpoint: ep, logger: t.logger.WithField("party", name)})

	t.mu.Lock()
	t.endpoints[name] = ep
	t.servers = append(t.servers, srv)
	t.mu.Unlock()

	go func() {
		if err := srv.Serve(lis); err != nil {
			t.logger.Errorf("Fail to serve %s on %s: %v", name, addr, err)
		}
	}()
	t.logger.Infof("Serving %s on %s", name, addr)
	return nil
}

// Open dials the counterparty and announces the flow the session belongs to.
func (t *Transport) Open(ctx context.Context, from ledger.Party, flowName string, to ledger.Party) (ledger.Session, error) {
	t.mu.Lock()
	signer, ok := t.endpoints[from.Name]
	t.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("%s is not registered with this transport", from)
	}
	addr, ok := t.addresses[to.Name]
	if !ok {
		return nil, ledger.NewFlowError("no route to %s", to)
	}

	conn, err := grpc.DialContext(ctx, addr, t.dialOpts...)
	if err != nil {
		return nil, errors.Wrapf(err, "error dialing %s", addr)
	}
	streamCtx, cancel := context.WithCancel(context.Background())
	stream, err := conn.NewStream(streamCtx, &serviceDesc.Streams[0], exchangeMethod)
	if err != nil {
		cancel()
		conn.Close()
		return nil, errors.Wrapf(err, "error opening stream to %s", to)
	}

	var s *streamSession
	s = newStreamSession(uuid.NewString(), flowName, to, signer, stream, func() error {
		defer cancel()
		if err := stream.CloseSend(); err != nil {
			conn.Close()
			return err
		}
		s.drain()
		return conn.Close()
	})
	open, err := sealFrame(signer, frameOpen, s.id, flowName, nil)
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := stream.SendMsg(open); err != nil {
		s.Close()
		return nil, errors.Wrapf(err, "error opening session with %s", to)
	}
	return s, nil
}

// Stop stops every server started by Register.
func (t *Transport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, srv := range t.servers {
		srv.Stop()
	}
	t.servers = nil
}

type server struct {
	endpoint ledger.Endpoint
	logger   *log.Entry
}

func (s *server) exchange(stream grpc.ServerStream) error {
	open := &common.Envelope{}
	if err := stream.RecvMsg(open); err != nil {
		return err
	}
	f, err := openFrame(open, nil)
	if err != nil {
		return err
	}
	if f.kind != frameOpen {
		return errors.Errorf("expected an open frame, got %d", f.kind)
	}

	session := newStreamSession(f.sessionID, f.flowName, f.creator, s.endpoint, stream, func() error { return nil })
	defer session.Close()
	s.logger.Debugf("Accepted session %s from %s for %s", f.sessionID, f.creator, f.flowName)
	if err := s.endpoint.Accept(stream.Context(), f.flowName, session); err != nil {
		s.logger.Debugf("Session %s ended with: %v", f.sessionID, err)
	}
	return nil
}
