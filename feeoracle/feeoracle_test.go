package feeoracle_test

import (
	"context"
	"testing"

	"github.com/lightninglabs/loopout/feeoracle"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	"github.com/stretchr/testify/require"
)

type stubBridge struct {
	rate   chainfee.SatPerKWeight
	rateErr error
	height uint32
}

func (s *stubBridge) EstimateFee(ctx context.Context, confTarget uint32) (chainfee.SatPerKWeight, error) {
	return s.rate, s.rateErr
}

func (s *stubBridge) CurrentHeight(ctx context.Context) (uint32, error) {
	return s.height, nil
}

func TestRateSuccess(t *testing.T) {
	bridge := &stubBridge{rate: 2000, height: 100}
	oracle := feeoracle.New(bridge)

	rate, err := oracle.Rate(context.Background(), feeoracle.Blocks6)
	require.NoError(t, err)
	require.Equal(t, chainfee.SatPerKWeight(2000), rate)
}

func TestRateZeroIsNoEstimate(t *testing.T) {
	bridge := &stubBridge{rate: 0, height: 100}
	oracle := feeoracle.New(bridge)

	_, err := oracle.Rate(context.Background(), feeoracle.Blocks6)
	require.ErrorIs(t, err, feeoracle.ErrNoFeeEstimate)
}

func TestCurrentHeight(t *testing.T) {
	bridge := &stubBridge{height: 4242}
	oracle := feeoracle.New(bridge)

	height, err := oracle.CurrentHeight(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint32(4242), height)
}
