// Package marketclock is a Go client for the marketclock calendar service.
package marketclock

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const service = "/marketclock.v1.Calendar/"

// Target selects a calendar, either by market hours key such as
// "Equity-usa-[*]" or by security.
type Target struct {
	Key          string
	SecurityType string
	Market       string
	Symbol       string
}

// Key targets a calendar by market hours key.
func Key(key string) Target { return Target{Key: key} }

// Security targets the calendar of a security. An empty symbol selects the
// market's wildcard entry.
func Security(securityType, market, symbol string) Target {
	return Target{SecurityType: securityType, Market: market, Symbol: symbol}
}

func (t Target) fields() map[string]any {
	if t.Key != "" {
		return map[string]any{"key": t.Key}
	}
	f := map[string]any{"security_type": t.SecurityType, "market": t.Market}
	if t.Symbol != "" {
		f["symbol"] = t.Symbol
	}
	return f
}

// Client calls the calendar service over gRPC.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

// Dial creates a Client for the server at addr. Without options the
// connection is insecure.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// NewClient wraps an existing connection. Close leaves it open.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close closes a connection opened by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// IsOpen reports whether the exchange is open at the instant at.
func (c *Client) IsOpen(ctx context.Context, target Target, at time.Time, extended bool) (bool, error) {
	out, err := c.invoke(ctx, "IsOpen", target, map[string]any{
		"at":       formatTime(at),
		"extended": extended,
	})
	if err != nil {
		return false, err
	}
	return out.GetFields()["open"].GetBoolValue(), nil
}

// IsOpenBetween reports whether the exchange is open at any point of
// [start, end).
func (c *Client) IsOpenBetween(ctx context.Context, target Target, start, end time.Time, extended bool) (bool, error) {
	out, err := c.invoke(ctx, "IsOpen", target, map[string]any{
		"at":       formatTime(start),
		"end":      formatTime(end),
		"extended": extended,
	})
	if err != nil {
		return false, err
	}
	return out.GetFields()["open"].GetBoolValue(), nil
}

// IsDateOpen reports whether the exchange trades at all on the date of at.
func (c *Client) IsDateOpen(ctx context.Context, target Target, at time.Time) (bool, error) {
	out, err := c.invoke(ctx, "IsDateOpen", target, map[string]any{"at": formatTime(at)})
	if err != nil {
		return false, err
	}
	return out.GetFields()["open"].GetBoolValue(), nil
}

// NextMarketOpen returns the first open strictly after after.
func (c *Client) NextMarketOpen(ctx context.Context, target Target, after time.Time, extended bool) (time.Time, error) {
	out, err := c.invoke(ctx, "NextMarketOpen", target, map[string]any{
		"after":    formatTime(after),
		"extended": extended,
	})
	if err != nil {
		return time.Time{}, err
	}
	return parseTime(out, "time")
}

// NextMarketClose returns the first close strictly after after.
func (c *Client) NextMarketClose(ctx context.Context, target Target, after time.Time, extended bool) (time.Time, error) {
	out, err := c.invoke(ctx, "NextMarketClose", target, map[string]any{
		"after":    formatTime(after),
		"extended": extended,
	})
	if err != nil {
		return time.Time{}, err
	}
	return parseTime(out, "time")
}

// StartTimeForTradeBars returns the start of the window holding count open
// bars of size bar that ends at end.
func (c *Client) StartTimeForTradeBars(ctx context.Context, target Target, end time.Time, bar time.Duration, count int, extended bool) (time.Time, error) {
	out, err := c.invoke(ctx, "StartTimeForTradeBars", target, map[string]any{
		"end":      formatTime(end),
		"bar":      bar.String(),
		"count":    count,
		"extended": extended,
	})
	if err != nil {
		return time.Time{}, err
	}
	return parseTime(out, "start")
}

func (c *Client) invoke(ctx context.Context, method string, target Target, args map[string]any) (*structpb.Struct, error) {
	fields := target.fields()
	for k, v := range args {
		fields[k] = v
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, service+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(out *structpb.Struct, name string) (time.Time, error) {
	v := out.GetFields()[name].GetStringValue()
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("response %s %q: %w", name, v, err)
	}
	return t, nil
}

// IsNotFound reports whether err means the calendar or the searched-for
// boundary does not exist.
func IsNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// IsInvalidArgument reports whether the server rejected the request.
func IsInvalidArgument(err error) bool {
	return status.Code(err) == codes.InvalidArgument
}
