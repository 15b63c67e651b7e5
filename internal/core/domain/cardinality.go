package domain

// CardinalityClass describes the distribution shape of a field's values.
type CardinalityClass string

const (
	CardinalityUnique          CardinalityClass = "unique"
	CardinalityNearUnique      CardinalityClass = "near_unique"
	CardinalityHighCardinality CardinalityClass = "high_cardinality"
	CardinalityLowCardinality  CardinalityClass = "low_cardinality"
	CardinalityEnumLike        CardinalityClass = "enum_like"
	CardinalityNone            CardinalityClass = "none"
)

// ClassifyByDistinctCount determines the cardinality class from absolute
// distinct and observed value counts.
func ClassifyByDistinctCount(distinctCount int64, totalValues int64) CardinalityClass {
	if totalValues > 0 && distinctCount == totalValues {
		return CardinalityUnique
	}

	if totalValues > 0 {
		ratio := float64(distinctCount) / float64(totalValues)
		if ratio >= 0.9 {
			return CardinalityNearUnique
		}
	}

	if distinctCount <= 20 {
		return CardinalityEnumLike
	}
	if distinctCount <= 200 {
		return CardinalityLowCardinality
	}
	return CardinalityHighCardinality
}

// ClassifyProfile classifies a field by its non-null scalar observations.
// Fields holding only nulls, objects or arrays have no meaningful class.
func ClassifyProfile(p FieldProfile) CardinalityClass {
	observed := int64(p.Present - p.Nulls)
	if p.Distinct == 0 || observed <= 0 {
		return CardinalityNone
	}
	return ClassifyByDistinctCount(int64(p.Distinct), observed)
}
