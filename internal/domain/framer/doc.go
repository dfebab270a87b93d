/*
Package framer builds the code strings injected into the sandbox.

The sandbox offers no return channel for injected code. Frame wraps caller
code in an async function, builds an outcome object inside a try/catch, and
hands it to the sandbox IPC function with the call id attached. The host
receives that outcome through its eval_callback command.

Single-line code that does not start with a statement keyword is treated as
an expression and returned implicitly:

	document.title            -> return (document.title);
	if (ok) { return 1 }      -> passed through
	const a = 1;\nreturn a    -> passed through

Anything with more than one statement must return its own value, otherwise
the outcome value is null.

The package also holds the fixed templates built on top of Frame: element
location by CSS selector, @ref, or xpath=; click; fill; invoke; the
accessibility snapshot walker; and the screenshot capture.
*/
package framer
