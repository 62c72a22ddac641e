package watch

import (
	_ "embed"
)

// bindingName is the Runtime binding carrying reports from the page to Go.
const bindingName = "__bsr_report"

//go:embed watcher.js
var watcherJS string

// armInitialJS attaches one-shot load/error reporting for an element's
// current (edge) load. {once: true} keeps duplicate events out at the
// source; the state machine guards against the rest.
const armInitialJS = `(id) => {
	const report = (op) => {
		if (window.__bsr_report) window.__bsr_report(JSON.stringify([{ op: op, id: id }]));
	};
	this.addEventListener("error", () => report("error"), { once: true });
	this.addEventListener("load", () => report("load"), { once: true });
}`

// armOriginJS attaches one-shot reporting for the origin load that the
// state machine just started by swapping src.
const armOriginJS = `(id) => {
	const report = (op) => {
		if (window.__bsr_report) window.__bsr_report(JSON.stringify([{ op: op, id: id }]));
	};
	this.addEventListener("error", () => report("origin-error"), { once: true });
	this.addEventListener("load", () => report("origin-load"), { once: true });
}`

// loadStateJS reads the element's load outcome for attach-time
// classification of images served instantly from the HTTP cache.
const loadStateJS = `() => ({ complete: this.complete, naturalWidth: this.naturalWidth })`

// scanJS lists lazy managed images still at the edge stage with their
// observed load state. Read-only: the sweep never writes element state.
const scanJS = `() => Array.from(document.querySelectorAll('img[data-bsr-cdn][loading="lazy"][data-bsr-id]'))
	.filter((img) => !img.dataset.bsrStage)
	.map((img) => ({ id: img.dataset.bsrId, complete: img.complete, naturalWidth: img.naturalWidth }))`
