package protocol

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/MonetDB/go-monetdb/internal/transport"
)

func TestParseChallengeBasic(t *testing.T) {
	c, err := parseChallenge("saltvalue:mserver:9:RIPEMD160,SHA256:BIG:RIPEMD160:sql=6:BINARY=1:CLIENTINFO:")
	if err != nil {
		t.Fatalf("parseChallenge: %v", err)
	}
	if c.salt != "saltvalue" || c.serverType != "mserver" || c.protocol != "9" {
		t.Fatalf("got %+v", c)
	}
	if c.optLevels["sql"] != 6 {
		t.Fatalf("optLevels = %+v", c.optLevels)
	}
	if c.binary != "1" || !c.clientinfo {
		t.Fatalf("got %+v", c)
	}
}

func TestParseChallengeTooFewFields(t *testing.T) {
	if _, err := parseChallenge("a:b:c"); err == nil {
		t.Fatal("expected error for short challenge line")
	}
}

func TestParseChallengeUnsupportedProtocol(t *testing.T) {
	_, err := parseChallenge("salt:mserver:8:RIPEMD160:BIG:RIPEMD160:sql=6:")
	if err == nil {
		t.Fatal("expected error for unsupported protocol version")
	}
}

func TestClassifyLoginReply(t *testing.T) {
	cases := []struct {
		reply string
		want  loginOutcome
	}{
		{"", loginComplete},
		{"=OK", loginComplete},
		{"^mapi:merovingian://proxy?", loginRestart},
		{"^mapi:monetdb://otherhost:1234/db", loginRedirect},
		{"!badpassword", loginRejected},
	}
	for _, c := range cases {
		outcome, _, _ := classifyLoginReply(c.reply)
		if outcome != c.want {
			t.Fatalf("classifyLoginReply(%q) = %v, want %v", c.reply, outcome, c.want)
		}
	}
}

func TestClassifyLoginReplyRedirectURL(t *testing.T) {
	outcome, url, err := classifyLoginReply("^mapi:monetdb://otherhost:1234/db\n")
	if err != nil || outcome != loginRedirect || url != "mapi:monetdb://otherhost:1234/db" {
		t.Fatalf("got outcome=%v url=%q err=%v", outcome, url, err)
	}
}

func TestAssembleResponseFormat(t *testing.T) {
	p := &Params{
		User:      "monetdb",
		Password:  "monetdb",
		Database:  "demo",
		Language:  "sql",
		ReplySize: 100,
	}
	c := challenge{
		salt:           "saltvalue",
		protocol:       "9",
		responseHashes: "SHA256",
		endian:         "BIG",
		prehashHash:    "SHA256",
		optLevels:      map[string]int{"sql": 0},
	}
	algo, ok := findHashAlgo("SHA256")
	if !ok {
		t.Fatal("SHA256 not found in supportedHashAlgos")
	}
	response, delayed := assembleResponse(p, c, algo, algo)
	// sqlLevel 0 means every option's index is >= sqlLevel, so all three
	// default options (auto_commit, reply_size, size_header) are delayed
	// rather than inlined.
	if len(delayed) != 3 {
		t.Fatalf("delayed = %+v, want 3 options", delayed)
	}
	fields := strings.Split(response, ":")
	if len(fields) < 7 {
		t.Fatalf("response has too few fields: %q", response)
	}
	if fields[0] != "BIG" || fields[1] != "monetdb" || fields[4] != "demo" {
		t.Fatalf("response = %q", response)
	}
}

type fakeDialerFunc func(ctx context.Context, network, address string, options transport.DialerOptions) (net.Conn, error)

func (f fakeDialerFunc) DialContext(ctx context.Context, network, address string, options transport.DialerOptions) (net.Conn, error) {
	return f(ctx, network, address, options)
}

func TestConnectHandshakeOverPipe(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- func() error {
			mr := newMessageReader(serverConn)
			mw := newMessageWriter(serverConn)
			challengeLine := "saltvalue:mserver:9:RIPEMD160,SHA256:BIG:RIPEMD160:sql=6:"
			if err := mw.writeMessage([]byte(challengeLine)); err != nil {
				return err
			}
			if _, err := mr.readBoundedString(maxChallengeBytes); err != nil {
				return err
			}
			return mw.writeMessage([]byte("=OK"))
		}()
	}()

	dialer := fakeDialerFunc(func(ctx context.Context, network, address string, options transport.DialerOptions) (net.Conn, error) {
		return clientConn, nil
	})

	p := &Params{
		User:      "monetdb",
		Password:  "monetdb",
		Database:  "demo",
		Language:  "sql",
		ReplySize: 100,
		Dialer:    dialer,
		Transport: transport.Target{Host: "ignored", Port: 1},
	}

	conn, state, dq, err := connect(context.Background(), p, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Close()
	if state.ReplySize != 100 {
		t.Fatalf("state = %+v", state)
	}
	if dq == nil {
		t.Fatal("expected delayed commands queue")
	}
	if err := <-serverDone; err != nil {
		t.Fatalf("server: %v", err)
	}
}
