package crawler

// DebugContainerID is the id of the overlay holding debug highlights. The capture skips it.
const DebugContainerID = "__pagepilot_debug"

// statePrelude installs the per-document handle registry. A fresh window means a fresh
// document id, which is how navigation is detected on the Go side.
const statePrelude = `
	let st = window.__pagepilot;
	if (!st) {
		st = {
			doc: Math.random().toString(36).slice(2) + Date.now().toString(36),
			next: 1,
			ids: new WeakMap(),
			refs: new Map(),
		};
		Object.defineProperty(window, '__pagepilot', { value: st, enumerable: false, configurable: true });
	}
	const handle = (n) => {
		let h = st.ids.get(n);
		if (!h) {
			h = st.next++;
			st.ids.set(n, h);
			st.refs.set(h, new WeakRef(n));
		}
		return h;
	};
	const deref = (h) => {
		const ref = st.refs.get(h);
		return ref ? ref.deref() : undefined;
	};
`

// captureJS walks the document once, iteratively and in pre-order, and reports every element
// and text node with its box, visibility and probe hits.
const captureJS = `() => {` + statePrelude + `
	const vh = window.innerHeight;
	const vw = window.innerWidth;
	const xhtml = 'http://www.w3.org/1999/xhtml';
	const rect = (r) => ({ x: r.left, y: r.top, w: r.width, h: r.height });
	const probe = (r) => {
		const pts = [
			[r.left + r.width / 4, r.top + r.height / 4],
			[r.left + 3 * r.width / 4, r.top + r.height / 4],
			[r.left + r.width / 4, r.top + 3 * r.height / 4],
			[r.left + 3 * r.width / 4, r.top + 3 * r.height / 4],
			[r.left + r.width / 2, r.top + r.height / 2],
		];
		const hits = [];
		for (const [x, y] of pts) {
			const hit = document.elementFromPoint(x, y);
			if (hit) hits.push(handle(hit));
		}
		return hits;
	};
	const visible = (el) => typeof el.checkVisibility === 'function'
		? el.checkVisibility({ checkOpacity: true, checkVisibilityCSS: true })
		: true;

	const nodes = [];
	const stack = [[document.documentElement, 0]];
	while (stack.length) {
		const [n, parent] = stack.pop();
		if (!n) continue;
		if (n.nodeType === 1 && n.id === '` + DebugContainerID + `') continue;
		const rec = { h: handle(n), p: parent, k: n.nodeType };
		if (n.nodeType === 3) {
			rec.x = n.data;
			const range = document.createRange();
			range.selectNodeContents(n);
			rec.r = rect(range.getBoundingClientRect());
			nodes.push(rec);
			continue;
		}
		rec.t = n.tagName.toLowerCase();
		rec.a = Array.from(n.attributes, (a) => [a.name, a.value]);
		rec.ns = n.namespaceURI !== xhtml;
		const r = n.getBoundingClientRect();
		rec.r = rect(r);
		rec.v = visible(n);
		if (r.width && r.height && r.top >= 0 && r.top <= vh) rec.pr = probe(r);
		nodes.push(rec);
		if (rec.t === 'head') continue;
		const kids = n.childNodes;
		for (let i = kids.length - 1; i >= 0; i--) {
			const c = kids[i];
			if (c.nodeType === 1 || c.nodeType === 3) stack.push([c, rec.h]);
		}
	}
	return JSON.stringify({ doc: st.doc, vw, vh, sx: window.scrollX, sy: window.scrollY, nodes });
}`

// regionsJS measures the document root and, when scanning, every element whose overflow
// style allows vertical scrolling. A one pixel scroll attempt proves the container moves.
const regionsJS = `(scan) => {` + statePrelude + `
	const root = document.scrollingElement || document.documentElement;
	const out = [{
		h: 0, root: true,
		oy: getComputedStyle(document.documentElement).overflowY,
		sh: root.scrollHeight, ch: window.innerHeight, st: window.scrollY, cs: true,
	}];
	if (!scan) return JSON.stringify(out);
	for (const el of document.querySelectorAll('*')) {
		if (el === document.documentElement) continue;
		const oy = getComputedStyle(el).overflowY;
		if (oy !== 'auto' && oy !== 'scroll' && oy !== 'overlay') continue;
		if (el.scrollHeight - el.clientHeight <= 0) continue;
		const before = el.scrollTop;
		el.scrollTop = before + 1;
		const cs = el.scrollTop !== before;
		el.scrollTop = before;
		out.push({ h: handle(el), oy, sh: el.scrollHeight, ch: el.clientHeight, st: el.scrollTop, cs });
	}
	return JSON.stringify(out);
}`

// scrollJS scrolls a region instantly and resolves after two animation frames so layout
// and occlusion reflect the new offset.
const scrollJS = `(h, offset) => {` + statePrelude + `
	const target = h === 0 ? window : deref(h);
	if (!target) throw new Error('scroll region ' + h + ' is gone');
	target.scrollTo({ top: offset, left: 0, behavior: 'instant' });
	return new Promise((resolve) => requestAnimationFrame(() => requestAnimationFrame(() => resolve(true))));
}`

// highlightJS draws index boxes over the current viewport inside a click-through container.
const highlightJS = `(boxes) => {
	let c = document.getElementById('` + DebugContainerID + `');
	if (c) c.remove();
	c = document.createElement('div');
	c.id = '` + DebugContainerID + `';
	c.style.cssText = 'position:fixed;inset:0;pointer-events:none;z-index:2147483647;';
	for (const b of boxes) {
		const d = document.createElement('div');
		d.style.cssText = 'position:absolute;border:2px solid ' + b.color + ';box-sizing:border-box;' +
			'left:' + b.x + 'px;top:' + b.y + 'px;width:' + b.w + 'px;height:' + b.h + 'px;';
		const label = document.createElement('span');
		label.textContent = String(b.index);
		label.style.cssText = 'position:absolute;top:-2px;left:-2px;font:11px monospace;color:#fff;padding:0 2px;background:' + b.color + ';';
		d.appendChild(label);
		c.appendChild(d);
	}
	document.body.appendChild(c);
	return true;
}`

const clearHighlightJS = `() => {
	const c = document.getElementById('` + DebugContainerID + `');
	if (c) c.remove();
	return true;
}`

const isLinkJS = `() => this.tagName.toLowerCase() === 'a' && this.hasAttribute('href')`
