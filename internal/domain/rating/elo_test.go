package rating_test

import (
	"math"
	"testing"

	"github.com/okian/duel/internal/domain/rating"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCalculator_Update(t *testing.T) {
	Convey("Given a default calculator", t, func() {
		calc := rating.NewCalculator()

		Convey("Then it should use K=24 and baseline 1000", func() {
			So(calc.KFactor(), ShouldEqual, 24)
			So(calc.Baseline(), ShouldEqual, 1000)
		})

		Convey("When two fresh entities meet and the left wins", func() {
			d, err := calc.Update(1000, 1000, true)

			Convey("Then the left gains 12 and the right loses 12", func() {
				So(err, ShouldBeNil)
				So(d.ExpectedLeft, ShouldEqual, 0.5)
				So(1000+d.Left, ShouldEqual, 1012)
				So(1000+d.Right, ShouldEqual, 988)
			})
		})

		Convey("When ratings differ", func() {
			pairs := [][2]float64{{1200, 1000}, {900, 1500}, {1000.5, 999.25}, {2400, 800}}

			Convey("Then every update should be zero-sum in both outcomes", func() {
				for _, p := range pairs {
					for _, leftWon := range []bool{true, false} {
						d, err := calc.Update(p[0], p[1], leftWon)
						So(err, ShouldBeNil)
						So(math.Abs(d.Left+d.Right), ShouldBeLessThan, 1e-9)
					}
				}
			})

			Convey("And an upset should move ratings more than an expected win", func() {
				favourite, _ := calc.Update(1400, 1000, true)
				upset, _ := calc.Update(1400, 1000, false)
				So(math.Abs(upset.Left), ShouldBeGreaterThan, math.Abs(favourite.Left))
			})
		})

		Convey("When ratings are not finite", func() {
			_, err := calc.Update(math.NaN(), 1000, true)

			Convey("Then it should be rejected", func() {
				So(err, ShouldWrap, rating.ErrInvalidRating)
			})
		})
	})
}

func TestExpected(t *testing.T) {
	Convey("Given expected scores", t, func() {
		Convey("Then both sides should sum to one", func() {
			So(rating.Expected(1300, 1100)+rating.Expected(1100, 1300), ShouldAlmostEqual, 1.0, 1e-12)
		})

		Convey("And a 400 point gap should give odds of ten to one", func() {
			So(rating.Expected(1400, 1000), ShouldAlmostEqual, 10.0/11.0, 1e-12)
		})
	})
}

func TestCalculatorOptions(t *testing.T) {
	Convey("Given custom options", t, func() {
		calc := rating.NewCalculator(rating.WithKFactor(32), rating.WithBaseline(1500), rating.WithKFactor(-1))

		Convey("Then valid values should apply and invalid ones be ignored", func() {
			So(calc.KFactor(), ShouldEqual, 32)
			So(calc.Baseline(), ShouldEqual, 1500)
		})
	})
}
