package browser

import (
	"context"
	"time"
)

// overlayScript defines the in-page element picker. It is installed on
// demand and is idempotent. Text selectors are only generated for engines
// that understand :has-text().
const overlayScript = `() => {
	if (window.__selfhealPicker) return true;
	window.__selfhealPicker = true;
	window.__selfhealPicked = null;

	const generate = (element, allowText) => {
		if (element.id) {
			return '#' + CSS.escape(element.id);
		}

		if (element.className && typeof element.className === 'string') {
			const classes = element.className.trim().split(/\s+/).map(c => CSS.escape(c)).join('.');
			if (classes) {
				const candidate = element.tagName.toLowerCase() + '.' + classes;
				if (document.querySelectorAll(candidate).length === 1) {
					return candidate;
				}
			}
		}

		const text = (element.textContent || '').trim();
		if (allowText && text && text.length < 50 && !text.includes('"')) {
			return element.tagName.toLowerCase() + ':has-text("' + text + '")';
		}

		const path = [];
		let current = element;
		while (current && current.tagName) {
			let part = current.tagName.toLowerCase();
			if (current.id) {
				path.unshift(part + '#' + CSS.escape(current.id));
				break;
			}
			let nth = 1;
			let sibling = current;
			while (sibling.previousElementSibling) {
				sibling = sibling.previousElementSibling;
				if (sibling.tagName === current.tagName) nth++;
			}
			if (nth > 1) part += ':nth-of-type(' + nth + ')';
			path.unshift(part);
			current = current.parentElement;
		}
		return path.join(' > ');
	};

	let teardown = null;

	window.__selfhealHidePicker = () => {
		if (teardown) teardown();
		teardown = null;
	};

	window.__selfhealShowPicker = (selector, action, allowText) => {
		window.__selfhealHidePicker();
		window.__selfhealPicked = null;

		const overlay = document.createElement('div');
		overlay.style.cssText = 'position:fixed;top:0;left:0;width:100%;height:100%;' +
			'background:rgba(0,0,0,0.5);z-index:999999;pointer-events:none;';

		const message = document.createElement('div');
		message.style.cssText = 'position:fixed;top:20px;left:50%;transform:translateX(-50%);' +
			'background:white;padding:20px 30px;border-radius:10px;max-width:500px;text-align:center;' +
			'box-shadow:0 4px 20px rgba(0,0,0,0.3);z-index:1000000;font-family:Arial,sans-serif;';

		const title = document.createElement('h2');
		title.style.cssText = 'color:#e74c3c;margin:0 0 10px 0;font-size:18px;';
		title.textContent = 'Locator Not Found';
		const missing = document.createElement('p');
		missing.textContent = 'Could not find: ' + selector;
		const hint = document.createElement('p');
		hint.style.cssText = 'color:#2196F3;font-weight:bold;';
		hint.textContent = 'Click the correct element on the page for "' + action + '"';
		message.append(title, missing, hint);

		document.body.appendChild(overlay);
		document.body.appendChild(message);

		const onClick = (e) => {
			if (message.contains(e.target)) return;
			e.preventDefault();
			e.stopPropagation();
			window.__selfhealPicked = generate(e.target, allowText);
			window.__selfhealHidePicker();
		};
		document.addEventListener('click', onClick, true);

		teardown = () => {
			document.removeEventListener('click', onClick, true);
			overlay.remove();
			message.remove();
		};
		return true;
	};

	window.__selfhealTakePicked = () => {
		const picked = window.__selfhealPicked;
		window.__selfhealPicked = null;
		return picked;
	};
	return true;
}`

// overlayRunner evaluates the picker functions in one engine's page
type overlayRunner interface {
	install() error
	show(selector, action string) error
	// take returns the picked selector, empty while nothing was clicked
	take() (string, error)
	hide() error
}

// pickElement shows the overlay and polls until the operator clicks an
// element or ctx is done. Evaluation errors while polling are ignored, the
// page may be navigating.
func pickElement(ctx context.Context, r overlayRunner, interval time.Duration, selector, action string) (string, error) {
	if err := r.install(); err != nil {
		return "", err
	}
	if err := r.show(selector, action); err != nil {
		return "", err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = r.hide()
			return "", ctx.Err()
		case <-ticker.C:
			picked, err := r.take()
			if err == nil && picked != "" {
				return picked, nil
			}
		}
	}
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
