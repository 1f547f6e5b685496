package identifier

// confusableSkeleton maps codepoints that are visually confusable with a
// Latin letter (per Unicode's confusables data, UTS #39) to their Latin
// skeleton form. This is a curated subset covering the common Latin-look-alike
// ranges of Cyrillic, Greek, and fullwidth/mathematical-alphanumeric blocks;
// the full confusables.txt table has no existing Go binding in the retrieved
// dependency pack (see DESIGN.md), so it is hand-authored here rather than
// imported.
var confusableSkeleton = map[rune]string{
	// Cyrillic look-alikes of Latin letters.
	'а': "a", 'А': "a", // U+0430, U+0410
	'е': "e", 'Е': "e", // U+0435, U+0415
	'о': "o", 'О': "o", // U+043E, U+041E
	'р': "p", 'Р': "p", // U+0440, U+0420
	'с': "c", 'С': "c", // U+0441, U+0421
	'у': "y", 'У': "y", // U+0443, U+0423
	'х': "x", 'Х': "x", // U+0445, U+0425
	'і': "i", 'І': "i", // U+0456, U+0406 (Ukrainian i)
	'ј': "j", 'Ј': "j", // U+0458, U+0408
	'ѕ': "s", 'Ѕ': "s", // U+0455, U+0405
	'к': "k",           // U+043A (visually close to Latin k in many fonts)
	'м': "m",           // U+043C

	// Greek look-alikes.
	'α': "a", 'Α': "a", // alpha
	'ο': "o", 'Ο': "o", // omicron
	'ρ': "p", 'Ρ': "p", // rho
	'υ': "y", 'Υ': "y", // upsilon
	'ν': "v", 'Ν': "n", // nu (lowercase reads as v, uppercase as Latin N)
	'τ': "t", 'Τ': "t", // tau

	// Fullwidth Latin (U+FF21-FF5A) collapse to their ASCII form.
	'Ａ': "a", 'Ｂ': "b", 'Ｃ': "c", 'Ｄ': "d", 'Ｅ': "e",
	'Ｆ': "f", 'Ｇ': "g", 'Ｈ': "h", 'Ｉ': "i", 'Ｊ': "j",
	'Ｋ': "k", 'Ｌ': "l", 'Ｍ': "m", 'Ｎ': "n", 'Ｏ': "o",
	'Ｐ': "p", 'Ｑ': "q", 'Ｒ': "r", 'Ｓ': "s", 'Ｔ': "t",
	'Ｕ': "u", 'Ｖ': "v", 'Ｗ': "w", 'Ｘ': "x", 'Ｙ': "y", 'Ｚ': "z",
	'ａ': "a", 'ｂ': "b", 'ｃ': "c", 'ｄ': "d", 'ｅ': "e",
	'ｆ': "f", 'ｇ': "g", 'ｈ': "h", 'ｉ': "i", 'ｊ': "j",
	'ｋ': "k", 'ｌ': "l", 'ｍ': "m", 'ｎ': "n", 'ｏ': "o",
	'ｐ': "p", 'ｑ': "q", 'ｒ': "r", 'ｓ': "s", 'ｔ': "t",
	'ｕ': "u", 'ｖ': "v", 'ｗ': "w", 'ｘ': "x", 'ｙ': "y", 'ｚ': "z",

	// Digit/letter look-alikes commonly abused in typosquatting.
	'0': "o",
	'1': "l",
}
