package server

// builtinDocs holds hover text for the builtin functions and constants.
var builtinDocs = map[string]string{
	"print": "`print(values...)` — writes the display form of each argument, space-separated, followed by a newline.",
	"len":   "`len(x)` — length of a string, array, or object.",
	"range": "`range(stop)`, `range(start, stop)`, `range(start, stop, step)` — array of numbers from start (default 0) up to stop by step (default 1).",
	"sqrt":  "`sqrt(n)` — square root.",
	"sin":   "`sin(n)` — sine, radians.",
	"cos":   "`cos(n)` — cosine, radians.",
	"tan":   "`tan(n)` — tangent, radians.",
	"abs":   "`abs(n)` — absolute value.",
	"floor": "`floor(n)` — largest whole number not above n.",
	"ceil":  "`ceil(n)` — smallest whole number not below n.",
	"round": "`round(n)` — nearest whole number, halves away from zero.",
	"min":   "`min(values...)` or `min(array)` — smallest number.",
	"max":   "`max(values...)` or `max(array)` — largest number.",
	"pi":    "The circle constant, 3.14159...",
	"e":     "Euler's number, 2.71828...",
}

// keywordDocs holds hover text for the keywords that do something today.
// Reserved-but-unused keywords hover with no extra text.
var keywordDocs = map[string]string{
	"if":       "`if cond { ... } elif cond { ... } else { ... }`",
	"let":      "`let name = expr` — declares a variable. Without an initializer the variable starts null.",
	"const":    "`const name = expr` — declares a variable; the kind is not enforced at runtime.",
	"var":      "`var name = expr` — declares a variable. Without an initializer the variable starts null.",
	"elif":     "Chains another condition onto an if statement.",
	"else":     "The fallback branch of an if statement.",
	"while":    "`while cond { ... }` — loops while cond is truthy.",
	"for":      "`for name in iterable { ... }` — iterates arrays by element, strings by character, objects by key.",
	"in":       "Separates the loop variable from the iterable in a for statement.",
	"break":    "Exits the nearest enclosing loop.",
	"continue": "Skips to the next iteration of the nearest enclosing loop.",
	"function": "`function name(params) { ... }` — declares a function.",
	"return":   "`return [value]` — ends the current function; a bare return yields null.",
	"class":    "`class Name { function m() { ... } }` — binds Name to an object of its methods.",
	"extends":  "Names a parent class; recorded but not linked at runtime.",
	"and":      "Yields the left operand when falsy, else the right. Both sides evaluate.",
	"or":       "Yields the left operand when truthy, else the right. Both sides evaluate.",
	"not":      "Boolean negation of truthiness.",
	"scene":    "`scene Name { type key: value ... }` — builds and registers a scene object.",
	"web":      "`web.app { route \"/path\" { ... } }` — builds a web app value with a route table.",
	"route":    "Declares one path handler inside a web block.",
	"import":   "`import name` — recognized and recorded; modules are not loaded.",
}
