package service

import (
	"regexp"
	"strings"
)

// Optional LaTeX-to-Unicode rewriting for downstream clients that cannot
// render math markup. Disabled by default: the rewrite is not stable under
// repeated application, so it may only run on already-emitted suffixes
// (DiffChannel post step), never inside the raw accumulator projection.

var latexReplacer = strings.NewReplacer(
	`\alpha`, "α", `\beta`, "β", `\gamma`, "γ", `\delta`, "δ",
	`\epsilon`, "ε", `\zeta`, "ζ", `\eta`, "η", `\theta`, "θ",
	`\iota`, "ι", `\kappa`, "κ", `\lambda`, "λ", `\mu`, "μ",
	`\nu`, "ν", `\xi`, "ξ", `\rho`, "ρ", `\sigma`, "σ",
	`\tau`, "τ", `\phi`, "φ", `\chi`, "χ", `\psi`, "ψ",
	`\omega`, "ω", `\Gamma`, "Γ", `\Delta`, "Δ", `\Theta`, "Θ",
	`\Lambda`, "Λ", `\Xi`, "Ξ", `\Pi`, "Π", `\Sigma`, "Σ",
	`\Phi`, "Φ", `\Psi`, "Ψ", `\Omega`, "Ω", `\pi`, "π",

	`\pm`, "±", `\mp`, "∓", `\times`, "×", `\div`, "÷",
	`\cdot`, "·", `\leq`, "≤", `\geq`, "≥", `\neq`, "≠",
	`\approx`, "≈", `\equiv`, "≡", `\infty`, "∞", `\sqrt`, "√",
	`\sum`, "∑", `\prod`, "∏", `\int`, "∫", `\partial`, "∂",
	`\nabla`, "∇", `\in`, "∈", `\notin`, "∉", `\subset`, "⊂",
	`\supset`, "⊃", `\cup`, "∪", `\cap`, "∩", `\emptyset`, "∅",
	`\forall`, "∀", `\exists`, "∃", `\neg`, "¬", `\land`, "∧",
	`\lor`, "∨", `\to`, "→", `\rightarrow`, "→", `\leftarrow`, "←",
	`\Rightarrow`, "⇒", `\Leftarrow`, "⇐", `\leftrightarrow`, "↔",
	`\degree`, "°", `\angle`, "∠", `\propto`, "∝", `\perp`, "⊥",
)

var superscriptDigits = map[byte]rune{
	'0': '⁰', '1': '¹', '2': '²', '3': '³', '4': '⁴',
	'5': '⁵', '6': '⁶', '7': '⁷', '8': '⁸', '9': '⁹',
}

var subscriptDigits = map[byte]rune{
	'0': '₀', '1': '₁', '2': '₂', '3': '₃', '4': '₄',
	'5': '₅', '6': '₆', '7': '₇', '8': '₈', '9': '₉',
}

var superscriptRe = regexp.MustCompile(`\^([0-9])`)
var subscriptRe = regexp.MustCompile(`_([0-9])`)

// LatexToUnicode rewrites common LaTeX commands, single-digit superscripts
// and single-digit subscripts into Unicode equivalents. Unknown commands are
// left untouched.
func LatexToUnicode(s string) string {
	if !strings.ContainsRune(s, '\\') && !strings.ContainsAny(s, "^_") {
		return s
	}

	out := latexReplacer.Replace(s)
	out = superscriptRe.ReplaceAllStringFunc(out, func(m string) string {
		return string(superscriptDigits[m[1]])
	})
	out = subscriptRe.ReplaceAllStringFunc(out, func(m string) string {
		return string(subscriptDigits[m[1]])
	})
	return out
}
