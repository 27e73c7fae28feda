package types

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestClassify(t *testing.T) {
	var syntaxErr *json.SyntaxError
	jsonErr := json.Unmarshal([]byte("{"), &struct{}{})
	if !errors.As(jsonErr, &syntaxErr) {
		t.Fatalf("expected a syntax error from json, got %T", jsonErr)
	}

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"auth", fmt.Errorf("login: %w", ErrAuthFailed), KindAuth},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), KindTimeout},
		{"json", jsonErr, KindParse},
		{"dial", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, KindNetwork},
		{"dns", &net.DNSError{Err: "no such host", Name: "nas.local"}, KindNetwork},
		{"other", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(ClientTypeTransmission, "list", tt.err)
			if !IsKind(err, tt.want) {
				t.Errorf("expected kind %s, got %v", tt.want, err)
			}
			if !errors.Is(err, tt.err) {
				t.Error("expected classified error to wrap the original")
			}
		})
	}
}

func TestClassify_PassesThroughProviderErrors(t *testing.T) {
	orig := NewProviderError(KindAuth, ClientTypeSABnzbd, "add", errors.New("bad key"))
	got := Classify(ClientTypeTransmission, "list", orig)

	var pe *ProviderError
	if !errors.As(got, &pe) || pe != orig {
		t.Errorf("expected the original provider error, got %v", got)
	}
	if Classify(ClientTypeTransmission, "list", nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestProtocolsForClient(t *testing.T) {
	tests := []struct {
		clientType ClientType
		want       []Protocol
	}{
		{ClientTypeTransmission, []Protocol{ProtocolTorrent}},
		{ClientTypeQBittorrent, []Protocol{ProtocolTorrent}},
		{ClientTypeSABnzbd, []Protocol{ProtocolUsenet}},
		{ClientTypeNZBGet, []Protocol{ProtocolUsenet}},
		{ClientTypeUsenetBlackhole, []Protocol{ProtocolUsenet}},
		{ClientTypeTorrentBlackhole, []Protocol{ProtocolTorrent}},
		{ClientTypeDownloadStation, []Protocol{ProtocolTorrent, ProtocolUsenet}},
		{ClientTypeAria2, []Protocol{ProtocolHTTP}},
	}

	for _, tt := range tests {
		t.Run(string(tt.clientType), func(t *testing.T) {
			got := ProtocolsForClient(tt.clientType)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("ProtocolsForClient(%s) = %v, want %v", tt.clientType, got, tt.want)
			}
		})
	}
}
