// Package dedupe merges normalized offers on fingerprint and image-hash
// equivalence classes, keeping the cheapest survivor of each class.
package dedupe

import "github.com/dealwatch/scout/internal/models"

// Dedupe walks offers in order, maintaining separate finger and img_hash
// indexes. On a collision in either index the offer with the smaller
// PriceFinal wins (nil treated as +infinity); the survivor replaces the
// prior entry in the output list and both indexes point to it. Offers
// with no image are deduped on Finger only.
func Dedupe(offers []models.NormalizedOffer) []models.NormalizedOffer {
	byFinger := make(map[string]int) // finger -> index in result
	byImg := make(map[string]int)    // img_hash -> index in result
	result := make([]models.NormalizedOffer, 0, len(offers))

	cheaper := func(a, b models.NormalizedOffer) bool {
		if a.PriceFinal == nil {
			return false
		}
		if b.PriceFinal == nil {
			return true
		}
		return *a.PriceFinal < *b.PriceFinal
	}

	for _, off := range offers {
		fIdx, fOK := byFinger[off.Finger]
		var iIdx int
		var iOK bool
		if off.ImgHash != nil {
			iIdx, iOK = byImg[*off.ImgHash]
		}

		switch {
		case !fOK && !iOK:
			result = append(result, off)
			idx := len(result) - 1
			byFinger[off.Finger] = idx
			if off.ImgHash != nil {
				byImg[*off.ImgHash] = idx
			}
		case fOK && (!iOK || fIdx == iIdx):
			if cheaper(off, result[fIdx]) {
				result[fIdx] = off
			}
			if off.ImgHash != nil {
				byImg[*off.ImgHash] = fIdx
			}
		case iOK && !fOK:
			if cheaper(off, result[iIdx]) {
				result[iIdx] = off
			}
			byFinger[off.Finger] = iIdx
		default:
			// Both indexes hit different survivors: merge onto the
			// cheaper of the two, keep the other index pointed at it too.
			winner := fIdx
			if cheaper(result[iIdx], result[fIdx]) {
				winner = iIdx
			}
			if cheaper(off, result[winner]) {
				result[winner] = off
			}
			byFinger[off.Finger] = winner
			if off.ImgHash != nil {
				byImg[*off.ImgHash] = winner
			}
		}
	}
	return result
}
