package sanitizer

const (
	MinRating = 1

	MaxRating = 5
)

func NormalizeRating(rating int) int {
	if rating < MinRating {
		return MinRating
	}
	if rating > MaxRating {
		return MaxRating
	}
	return rating
}
