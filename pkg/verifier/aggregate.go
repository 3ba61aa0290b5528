package verifier

import "github.com/xhad/ackaudit/internal/models"

// Aggregate folds sentence records into a document verdict. The result is Yes when any
// record is Yes. Confidence is the highest similarity over every classified sentence,
// whatever its verdict, and 0 when nothing was classified.
func Aggregate(records []models.VerificationRecord) models.DocumentVerdict {
	out := models.DocumentVerdict{
		Result:        models.VerdictNo,
		Verifications: records,
	}
	if out.Verifications == nil {
		out.Verifications = []models.VerificationRecord{}
	}
	for i, r := range records {
		if r.Verdict == models.VerdictYes {
			out.Result = models.VerdictYes
		}
		if i == 0 || r.Similarity > out.Confidence {
			out.Confidence = r.Similarity
		}
	}
	return out
}
