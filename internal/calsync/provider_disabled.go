//go:build !protogen

package calsync

// NewBridgeAdapter is a no-op without generated bridge clients; deployments
// fall back to the iCal HTTP adapter.
func NewBridgeAdapter(_ string) (Adapter, error) {
	return nil, nil
}
