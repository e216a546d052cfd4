package support

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/MeKo-Tech/pocrop/internal/geometry"
	"github.com/MeKo-Tech/pocrop/internal/imageio"
	"github.com/MeKo-Tech/pocrop/internal/testutil"
	"github.com/cucumber/godog"
)

// RegisterImageSteps registers steps that create and inspect images.
func (testCtx *TestContext) RegisterImageSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a photographed document "([^"]*)"$`, testCtx.aPhotographedDocument)
	sc.Step(`^a blank image "([^"]*)" of size (\d+)x(\d+)$`, testCtx.aBlankImage)
	sc.Step(`^a text file "([^"]*)"$`, testCtx.aTextFile)
	sc.Step(`^the image "([^"]*)" should be (\d+)x(\d+)$`, testCtx.theImageShouldBe)
	sc.Step(`^the image "([^"]*)" should have a height to width ratio of ([0-9.]+)$`, testCtx.theImageShouldHaveAspectRatio)
	sc.Step(`^the image "([^"]*)" should be grayscale$`, testCtx.theImageShouldBeGrayscale)
}

func (testCtx *TestContext) writeImage(name string, img image.Image) error {
	if err := imageio.Save(img, testCtx.Path(name), 95); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func (testCtx *TestContext) aPhotographedDocument(name string) error {
	return testCtx.writeImage(name, testutil.GenerateDocumentImage(testutil.DefaultDocumentConfig()))
}

func (testCtx *TestContext) aBlankImage(name string, width, height int) error {
	return testCtx.writeImage(name, testutil.CreateTestImage(width, height, color.NRGBA{R: 90, G: 140, B: 200, A: 255}))
}

func (testCtx *TestContext) aTextFile(name string) error {
	return writeFile(testCtx.Path(name), []byte("not an image\n"))
}

func (testCtx *TestContext) loadImage(name string) (image.Image, error) {
	img, _, err := imageio.Load(testCtx.Path(testCtx.substituteCommandVariables(name)))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", name, err)
	}
	return img, nil
}

func (testCtx *TestContext) theImageShouldBe(name string, width, height int) error {
	img, err := testCtx.loadImage(name)
	if err != nil {
		return err
	}
	if got := img.Bounds().Size(); got.X != width || got.Y != height {
		return fmt.Errorf("image %s is %dx%d, expected %dx%d", name, got.X, got.Y, width, height)
	}
	return nil
}

func (testCtx *TestContext) theImageShouldHaveAspectRatio(name string, ratio float64) error {
	img, err := testCtx.loadImage(name)
	if err != nil {
		return err
	}
	size := geometry.SizeOf(img.Bounds())
	if got := size.Height / size.Width; math.Abs(got-ratio) > 0.02 {
		return fmt.Errorf("image %s has height/width %.3f, expected %.3f", name, got, ratio)
	}
	return nil
}

func (testCtx *TestContext) theImageShouldBeGrayscale(name string) error {
	img, err := testCtx.loadImage(name)
	if err != nil {
		return err
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y += 7 {
		for x := b.Min.X; x < b.Max.X; x += 7 {
			r, g, bl, _ := img.At(x, y).RGBA()
			if absDiff(r, g) > 0x300 || absDiff(g, bl) > 0x300 {
				return fmt.Errorf("image %s has colour at (%d,%d)", name, x, y)
			}
		}
	}
	return nil
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
