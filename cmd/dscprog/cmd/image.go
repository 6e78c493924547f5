package cmd

import (
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/image"
	"github.com/OpenTraceLab/OpenTraceDSC/pkg/srec"
)

var (
	imageFormat string
	imageBase   string
)

func loadImage(path string) ([]srec.DataBlock, error) {
	f, err := image.ParseFormat(imageFormat)
	if err != nil {
		return nil, err
	}
	base, err := parseNumber(imageBase)
	if err != nil {
		return nil, err
	}
	return image.Load(path, f, base)
}

func imageSize(blocks []srec.DataBlock) int {
	n := 0
	for _, b := range blocks {
		n += len(b.Data)
	}
	return n
}
