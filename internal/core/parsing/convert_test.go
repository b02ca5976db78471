package parsing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type unsupportedConverter struct{}

func (unsupportedConverter) Convert(context.Context, []byte, FormatTag, FormatTag) ([]byte, error) {
	return nil, ErrConversionUnsupported
}

func TestChainConvertersFirstNonEmptyWins(t *testing.T) {
	empty := &fakeConverter{out: []byte("   ")}
	good := &fakeConverter{out: []byte("text")}
	never := &fakeConverter{out: []byte("unused")}

	out, err := ChainConverters(unsupportedConverter{}, empty, good, never).Convert(context.Background(), nil, TagRTF, TagTxt)
	require.NoError(t, err)
	assert.Equal(t, "text", string(out))
	assert.Equal(t, 1, empty.calls)
	assert.Equal(t, 0, never.calls)
}

func TestChainConvertersReportsFailures(t *testing.T) {
	_, err := ChainConverters(unsupportedConverter{}).Convert(context.Background(), nil, TagRTF, TagTxt)
	assert.ErrorIs(t, err, ErrConversionUnsupported)

	boom := errors.New("boom")
	_, err = ChainConverters(&fakeConverter{err: boom}, nil).Convert(context.Background(), nil, TagRTF, TagTxt)
	assert.ErrorIs(t, err, boom)
}

func TestConvertersRejectUnsupportedPairs(t *testing.T) {
	_, err := NewSofficeConverter(0).Convert(context.Background(), nil, TagDoc, TagPptx)
	assert.ErrorIs(t, err, ErrConversionUnsupported)

	_, err = NewPandocConverter(0).Convert(context.Background(), nil, TagPDF, TagTxt)
	assert.ErrorIs(t, err, ErrConversionUnsupported)

	_, err = NewDocconvConverter().Convert(context.Background(), nil, TagXlsx, TagTxt)
	assert.ErrorIs(t, err, ErrConversionUnsupported)
}

func TestMissingToolIsReported(t *testing.T) {
	conv := NewPandocConverter(time.Second)
	conv.Binary = "docsift-no-such-tool"
	_, err := conv.Convert(context.Background(), []byte(`{\rtf1}`), TagRTF, TagTxt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available")
}
