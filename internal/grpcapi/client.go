package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the Documents service on conn.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) List(ctx context.Context, resource string, filter map[string]string) (*structpb.Struct, error) {
	return c.call(ctx, "List", map[string]any{"resource": resource, "fields": stringMap(filter)})
}

func (c *Client) Save(ctx context.Context, resource string, fields map[string]string) (*structpb.Struct, error) {
	return c.call(ctx, "Save", map[string]any{"resource": resource, "fields": stringMap(fields)})
}

// Delete removes a document, or an item of a property when item is set.
func (c *Client) Delete(ctx context.Context, resource, name, item string) (*structpb.Struct, error) {
	return c.call(ctx, "Delete", map[string]any{"resource": resource, "name": name, "item": item})
}

func (c *Client) call(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func stringMap(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
