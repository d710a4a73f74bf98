package chromepage

// resolverJS locates an element by either a stored CSS selector or a
// root-to-node structural path of the form /html[1]/body[1]/div[2]. Indices
// count same-tag siblings, matching how paths are recorded.
const resolverJS = `
function __resolve(sel) {
	if (sel && sel[0] === '/') {
		const parts = sel.split('/').filter(Boolean);
		let cur = document;
		for (const part of parts) {
			const m = part.match(/^([a-zA-Z0-9-]+)\[(\d+)\]$/);
			if (!m) return null;
			const tag = m[1].toUpperCase();
			const idx = parseInt(m[2], 10);
			let count = 0, next = null;
			for (const child of cur.children || []) {
				if (child.tagName === tag) {
					count++;
					if (count === idx) { next = child; break; }
				}
			}
			if (!next) return null;
			cur = next;
		}
		return cur === document ? null : cur;
	}
	try {
		return document.querySelector(sel);
	} catch (e) {
		return null;
	}
}
`

// captureScript is injected into every document on an attached tab. It
// reports clicks with a full document snapshot over the record binding and
// playback shortcut keys over the key binding. Clicks on our own overlay
// nodes are flagged so they are never recorded as steps.
const captureScript = `(() => {
	if (window.__fsCaptureInstalled) return;
	window.__fsCaptureInstalled = true;

	function pathOf(el) {
		const parts = [];
		let cur = el;
		while (cur && cur.nodeType === 1) {
			let idx = 1, sib = cur.previousElementSibling;
			while (sib) {
				if (sib.tagName === cur.tagName) idx++;
				sib = sib.previousElementSibling;
			}
			parts.unshift(cur.tagName.toLowerCase() + '[' + idx + ']');
			cur = cur.parentElement;
		}
		return '/' + parts.join('/');
	}

	document.addEventListener('click', (ev) => {
		if (!window.` + recordBinding + `) return;
		const t = ev.target;
		if (!t || t.nodeType !== 1) return;
		const onOverlay = !!(t.closest && t.closest('[data-flowscribe-overlay]'));
		window.` + recordBinding + `(JSON.stringify({
			url: location.href,
			documentHTML: document.documentElement ? document.documentElement.outerHTML : '',
			path: pathOf(t),
			onOverlay: onOverlay
		}));
	}, true);

	document.addEventListener('keydown', (ev) => {
		if (!window.` + keyBinding + `) return;
		const t = ev.target;
		if (t && (t.isContentEditable || /^(INPUT|TEXTAREA|SELECT)$/.test(t.tagName))) return;
		let k = null;
		if (ev.key === 'ArrowRight') k = 'next';
		else if (ev.key === 'ArrowLeft') k = 'previous';
		else if (ev.key === 'Escape') k = 'stop';
		if (k) window.` + keyBinding + `(k);
	}, true);
})()`

const findScript = `(() => {
` + resolverJS + `
	const el = __resolve(%s);
	if (!el) return null;
	const r = el.getBoundingClientRect();
	const form = el.closest ? el.closest('form') : null;
	return {
		rect: {x: r.x, y: r.y, width: r.width, height: r.height},
		text: (el.innerText || el.textContent || '').trim().slice(0, 500),
		ariaLabel: el.getAttribute('aria-label') || '',
		formText: form ? (form.innerText || '').trim().slice(0, 2000) : ''
	};
})()`

const clickScript = `(() => {
` + resolverJS + `
	const el = __resolve(%s);
	if (!el) return false;
	el.click();
	return true;
})()`

const scrollScript = `(() => {
` + resolverJS + `
	const el = __resolve(%s);
	if (!el) return false;
	el.scrollIntoView({behavior: 'smooth', block: 'center'});
	return true;
})()`

// showOverlayScript renders the highlight border and tooltip, then keeps them
// glued to the element through scroll and resize with an animation frame
// loop. Overlay nodes carry data-flowscribe-overlay so recorded clicks on
// them can be discarded.
const showOverlayScript = `(() => {
` + resolverJS + `
	const sel = %s, text = %s, placement = %s;

	let hl = document.getElementById('__fs_highlight');
	if (!hl) {
		hl = document.createElement('div');
		hl.id = '__fs_highlight';
		hl.setAttribute('data-flowscribe-overlay', '1');
		hl.style.cssText = 'position:fixed;z-index:2147483646;pointer-events:none;border:2px solid #ff6b00;border-radius:4px;box-shadow:0 0 0 4px rgba(255,107,0,0.25);transition:all 120ms ease;';
		document.documentElement.appendChild(hl);
	}
	let tip = document.getElementById('__fs_tooltip');
	if (!tip) {
		tip = document.createElement('div');
		tip.id = '__fs_tooltip';
		tip.setAttribute('data-flowscribe-overlay', '1');
		tip.style.cssText = 'position:fixed;z-index:2147483647;width:280px;max-height:120px;overflow:hidden;background:#1f2933;color:#fff;font:13px/1.4 sans-serif;padding:10px 12px;border-radius:6px;box-shadow:0 4px 16px rgba(0,0,0,0.35);';
		document.documentElement.appendChild(tip);
	}
	tip.textContent = text;

	if (window.__fsOverlayRAF) cancelAnimationFrame(window.__fsOverlayRAF);
	const tick = () => {
		const el = __resolve(sel);
		if (el) {
			const r = el.getBoundingClientRect();
			hl.style.display = 'block';
			tip.style.display = 'block';
			hl.style.left = (r.left - 4) + 'px';
			hl.style.top = (r.top - 4) + 'px';
			hl.style.width = (r.width + 8) + 'px';
			hl.style.height = (r.height + 8) + 'px';
			let tx, ty;
			if (placement === 'left') { tx = r.left - 292; ty = r.top; }
			else if (placement === 'below') { tx = r.left; ty = r.bottom + 12; }
			else if (placement === 'above') { tx = r.left; ty = r.top - 132; }
			else { tx = r.right + 12; ty = r.top; }
			tip.style.left = tx + 'px';
			tip.style.top = ty + 'px';
		} else {
			hl.style.display = 'none';
			tip.style.display = 'none';
		}
		window.__fsOverlayRAF = requestAnimationFrame(tick);
	};
	tick();
})()`

const clearOverlayScript = `(() => {
	if (window.__fsOverlayRAF) {
		cancelAnimationFrame(window.__fsOverlayRAF);
		window.__fsOverlayRAF = null;
	}
	for (const id of ['__fs_highlight', '__fs_tooltip']) {
		const n = document.getElementById(id);
		if (n) n.remove();
	}
})()`

// watchMutationsScript installs a coalescing MutationObserver that pings the
// mutation binding at most every 50ms while the DOM is changing.
const watchMutationsScript = `(() => {
	if (window.__fsMutObs) window.__fsMutObs.disconnect();
	const target = document.body || document.documentElement;
	if (!target || !window.` + mutationBinding + `) return;
	let pending = false;
	const obs = new MutationObserver(() => {
		if (pending) return;
		pending = true;
		setTimeout(() => { pending = false; window.` + mutationBinding + `(''); }, 50);
	});
	obs.observe(target, {childList: true, subtree: true, attributes: true});
	window.__fsMutObs = obs;
})()`

const unwatchMutationsScript = `(() => {
	if (window.__fsMutObs) {
		window.__fsMutObs.disconnect();
		window.__fsMutObs = null;
	}
})()`
